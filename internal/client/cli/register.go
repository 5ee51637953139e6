package cli

import (
	"context"
	"fmt"
)

func (a *App) Register(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	password, err := GetPassword("Enter password", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	confirm, err := GetPassword("Confirm password", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.Register(ctx, email, username, password, confirm); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Registered. Check your mailbox for the verification code, then run 'verify'.")
}

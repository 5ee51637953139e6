package cli

import (
	"context"
	"fmt"
)

func (a *App) Login(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	password, err := GetPassword("Enter password", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.Login(ctx, email, password); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Login successful")
}

func (a *App) Logout(ctx context.Context) {
	if err := a.manager.Logout(ctx); err != nil {
		a.printError(err)
		return
	}
	fmt.Fprintln(a.out, "Logged out")
}

package cli

import (
	"context"
	"fmt"
)

func (a *App) VerifyEmail(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	code, err := GetSimpleText(a.reader, "Enter verification code", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.VerifyEmail(ctx, email, code); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Email verified, you can now login.")
}

func (a *App) ResendOTP(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.ResendOTP(ctx, email); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Verification code sent.")
}

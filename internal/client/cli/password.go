package cli

import (
	"context"
	"fmt"
)

// ForgotPassword walks the whole reset flow: request a code, confirm it,
// then set a new password with the issued reset token.
func (a *App) ForgotPassword(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.ForgotPassword(ctx, email); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Reset code sent, check your mailbox.")

	code, err := GetSimpleText(a.reader, "Enter reset code", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.VerifyForgotPassword(ctx, email, code); err != nil {
		a.printError(err)
		return
	}

	password, err := GetPassword("Enter new password", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	confirm, err := GetPassword("Confirm new password", a.out)
	if err != nil {
		a.printError(err)
		return
	}

	resetToken, err := a.manager.StoredResetToken(ctx)
	if err != nil {
		a.printError(err)
		return
	}

	if _, err := a.manager.ChangePassword(ctx, password, confirm, resetToken); err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintln(a.out, "Password changed, you can now login.")
}

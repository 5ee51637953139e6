package cli

import (
	"context"
	"fmt"
)

func (a *App) Whoami(ctx context.Context) {

	profile, err := a.manager.Profile(ctx)
	if err != nil {
		a.printError(err)
		return
	}

	fmt.Fprintf(a.out, "Email: %s\n", profile.Email)
	if profile.Username != "" {
		fmt.Fprintf(a.out, "Username: %s\n", profile.Username)
	}
	if profile.FirstName != "" || profile.LastName != "" {
		fmt.Fprintf(a.out, "Name: %s %s\n", profile.FirstName, profile.LastName)
	}
}

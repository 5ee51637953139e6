package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/client/session"
)

func (a *App) getStatus() string {
	s := a.manager.Session()
	switch s.State {
	case session.StateAuthenticated:
		return "(authenticated)"
	case session.StateAnonymous:
		return "(anonymous)"
	default:
		return ""
	}
}

func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to the auth client (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprintf(a.out, "auth %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help":
			if a.manager.Session().Authenticated() {
				fmt.Fprintln(a.out, "Available commands: whoami, logout, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: register, verify, resend, login, forgot, exit")
			}
		case "register":
			a.Register(ctx)
		case "verify":
			a.VerifyEmail(ctx)
		case "resend":
			a.ResendOTP(ctx)
		case "login":
			a.Login(ctx)
		case "forgot":
			a.ForgotPassword(ctx)
		case "whoami":
			a.Whoami(ctx)
		case "logout":
			a.Logout(ctx)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", parts[0])
		}
	}
}

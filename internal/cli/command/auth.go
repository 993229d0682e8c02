package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/server/httpserver/handler"
)

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and print the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "login",
				Aliases:  []string{"l"},
				Usage:    "Login identifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password",
				EnvVars: []string{"AUTHMESH_PASSWORD"},
			},
			&cli.StringFlag{
				Name:  "ip",
				Usage: "Client IP to record on the session (defaults to the caller's address)",
			},
			&cli.StringFlag{
				Name:  "user-agent",
				Usage: "User agent to record on the session",
			},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	var result handler.LoginResponse
	err := post(c, "/auth/login", handler.LoginRequest{
		Login:     c.String("login"),
		Password:  c.String("password"),
		IPAddress: c.String("ip"),
		UserAgent: c.String("user-agent"),
	}, &result)
	if err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	w := stdout(c)
	fmt.Fprintf(w, "Session token: %s\n", result.SessionToken)
	if result.NeedsMfa {
		fmt.Fprintln(w, "\nSecond factor required. Run: authmesh-cli --token <token> mfa verify --code <code>")
	}
	return nil
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Invalidate the current session",
		Action: logout,
	}
}

func logout(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}
	if err := post(c, "/auth/logout", handler.TokenRequest{SessionToken: token}, nil); err != nil {
		return err
	}
	fmt.Fprintln(stdout(c), "Logged out.")
	return nil
}

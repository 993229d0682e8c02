package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/core/service"
)

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage user credentials",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a user",
				Flags: append(configFlags(),
					&cli.StringFlag{Name: "login", Usage: "Login name", Required: true},
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Password",
						EnvVars:  []string{"AUTHMESH_USER_PASSWORD"},
						Required: true,
					},
					&cli.BoolFlag{Name: "mfa", Usage: "Require a second factor at login"},
				),
				Action: userAddAction,
			},
		},
	}
}

func userAddAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := openStorage(c.Context, cfg, log.Slog())
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	comps, err := buildServices(cfg, store, nil, log.Slog())
	if err != nil {
		return err
	}

	cred, err := comps.auth.CreateUser(c.Context, &service.CreateUserRequest{
		Login:      c.String("login"),
		Password:   c.String("password"),
		MfaEnabled: c.Bool("mfa"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Created user %s (%s)\n", cred.Login, cred.UserID)
	if cred.MfaEnabled {
		fmt.Fprintln(c.App.Writer, "MFA is required; enroll with: authmesh-cli mfa setup --login "+cred.Login)
	}
	return nil
}

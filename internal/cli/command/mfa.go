package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/server/httpserver/handler"
)

// MfaCommand returns the mfa subcommand group.
func MfaCommand() *cli.Command {
	return &cli.Command{
		Name:  "mfa",
		Usage: "Manage the second factor",
		Subcommands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Upgrade a restricted session with a TOTP or recovery code",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code",
						Aliases:  []string{"c"},
						Usage:    "6-digit TOTP code or XXXXX-XXXXX recovery code",
						Required: true,
					},
					&cli.StringFlag{Name: "ip", Usage: "Client IP to record on the new session"},
					&cli.StringFlag{Name: "user-agent", Usage: "User agent to record on the new session"},
				},
				Action: mfaVerify,
			},
			{
				Name:  "setup",
				Usage: "Enroll a user and print the seed and recovery codes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user-id", Aliases: []string{"u"}, Usage: "User ID"},
					&cli.StringFlag{Name: "login", Aliases: []string{"l"}, Usage: "Login identifier"},
				},
				Action: mfaSetup,
			},
			{
				Name:   "disable",
				Usage:  "Remove the second factor of the session's user",
				Action: mfaDisable,
			},
			{
				Name:   "reset-recovery",
				Usage:  "Replace the recovery codes of the session's user",
				Action: mfaResetRecovery,
			},
		},
	}
}

func mfaVerify(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}

	var result handler.TokenResponse
	err = post(c, "/auth/mfa/verify", handler.MfaVerifyRequest{
		SessionToken: token,
		TotpOrCode:   c.String("code"),
		IPAddress:    c.String("ip"),
		UserAgent:    c.String("user-agent"),
	}, &result)
	if err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	fmt.Fprintf(stdout(c), "Session token: %s\n", result.SessionToken)
	return nil
}

func mfaSetup(c *cli.Context) error {
	user := domain.UserReference{ID: c.String("user-id"), Login: c.String("login")}
	if user.IsZero() {
		return fmt.Errorf("--user-id or --login required")
	}

	var result handler.MfaSetupResponse
	if err := post(c, "/auth/mfa/setup", handler.MfaSetupRequest{User: user}, &result); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	w := stdout(c)
	fmt.Fprintf(w, "Secret:      %s\n", result.Secret)
	fmt.Fprintf(w, "OTPAuth URL: %s\n\n", result.OTPAuthURL)
	printRecoveryCodes(c, result.RecoveryCodes)
	return nil
}

func mfaDisable(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}
	if err := post(c, "/auth/mfa/disable", handler.TokenRequest{SessionToken: token}, nil); err != nil {
		return err
	}
	fmt.Fprintln(stdout(c), "Second factor disabled.")
	return nil
}

func mfaResetRecovery(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}

	var result handler.RecoveryCodesResponse
	if err := post(c, "/auth/mfa/reset-recovery", handler.TokenRequest{SessionToken: token}, &result); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	printRecoveryCodes(c, result.RecoveryCodes)
	return nil
}

func printRecoveryCodes(c *cli.Context, codes []string) {
	w := stdout(c)
	fmt.Fprintln(w, "Recovery codes (each works once):")
	for _, code := range codes {
		fmt.Fprintf(w, "  %s\n", code)
	}
	fmt.Fprintln(w, "\nStore these now. They cannot be shown again.")
}

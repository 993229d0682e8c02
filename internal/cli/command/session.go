package command

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/cli/connection"
	"github.com/yndnr/authmesh-go/internal/cli/output"
	"github.com/yndnr/authmesh-go/internal/server/httpserver/handler"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	userID := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "user-id",
			Aliases:  []string{"u"},
			Usage:    "User ID",
			Required: true,
		}
	}

	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions of a user, revoked ones included",
				Flags:  []cli.Flag{userID()},
				Action: sessionList,
			},
			{
				Name:  "renew",
				Usage: "Replace the session token",
				Flags: []cli.Flag{
					userID(),
					&cli.StringFlag{Name: "ip", Usage: "Client IP to record on the new session"},
					&cli.StringFlag{Name: "user-agent", Usage: "User agent to record on the new session"},
				},
				Action: sessionRenew,
			},
			{
				Name:  "validate",
				Usage: "Check that the session token is live",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user-id", Aliases: []string{"u"}, Usage: "Expected owner"},
					&cli.BoolFlag{Name: "allow-restricted", Usage: "Accept sessions still awaiting the second factor"},
				},
				Action: sessionValidate,
			},
			{
				Name:   "invalidate",
				Usage:  "Revoke the session",
				Action: sessionInvalidate,
			},
			{
				Name:   "invalidate-others",
				Usage:  "Revoke every other session of the user",
				Flags:  []cli.Flag{userID()},
				Action: sessionInvalidateOthers,
			},
		},
	}
}

func sessionList(c *cli.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var header http.Header
	if token := c.String("token"); token != "" {
		header = http.Header{handler.SessionTokenHeader: {token}}
	}

	path := "/auth/sessions?" + url.Values{"user_id": {c.String("user-id")}}.Encode()
	resp, err := newClient(c).Get(ctx, path, header)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var sessions []handler.SessionResponse
	if err := connection.ParseResponse(resp, &sessions); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, sessions)
	}
	if err := render(c, sessionTable(sessions, ParseGlobalFlags(c).Wide)); err != nil {
		return err
	}
	fmt.Fprintf(stdout(c), "\nTotal: %d sessions\n", len(sessions))
	return nil
}

func sessionTable(sessions []handler.SessionResponse, wide bool) *output.Table {
	t := &output.Table{}
	t.Headers = []string{"SESSION ID", "STATE", "CREATED", "EXPIRES", "IP"}
	if wide {
		t.Headers = append(t.Headers, "USER AGENT")
	}
	for _, s := range sessions {
		row := []string{
			markCurrent(s),
			sessionState(s),
			s.CreatedAt.Local().Format(output.TimeLayout),
			formatOptionalTime(s.ExpiresAt),
			orDash(s.IPAddress),
		}
		if wide {
			row = append(row, orDash(s.UserAgent))
		}
		t.AddRow(row...)
	}
	return t
}

func markCurrent(s handler.SessionResponse) string {
	if s.Current {
		return s.SessionID + " *"
	}
	return s.SessionID
}

func sessionState(s handler.SessionResponse) string {
	switch {
	case s.RevokedAt != nil:
		return "revoked"
	case s.Restricted:
		return "restricted"
	default:
		return "active"
	}
}

func sessionRenew(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}

	var result handler.TokenResponse
	err = post(c, "/auth/session/renew", handler.RenewSessionRequest{
		SessionToken: token,
		UserID:       c.String("user-id"),
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

func sessionValidate(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}

	var result handler.ValidateSessionResponse
	err = post(c, "/auth/session/validate", handler.ValidateSessionRequest{
		SessionToken:    token,
		UserID:          c.String("user-id"),
		AllowRestricted: c.Bool("allow-restricted"),
	}, &result)
	if err != nil {
		return err
	}
	return render(c, result)
}

func sessionInvalidate(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}
	if err := post(c, "/auth/session/invalidate", handler.TokenRequest{SessionToken: token}, nil); err != nil {
		return err
	}
	fmt.Fprintln(stdout(c), "Session invalidated.")
	return nil
}

func sessionInvalidateOthers(c *cli.Context) error {
	token, err := requireToken(c)
	if err != nil {
		return err
	}

	var result handler.InvalidateOthersResponse
	err = post(c, "/auth/session/invalidate-others", handler.InvalidateOthersRequest{
		SessionToken: token,
		UserID:       c.String("user-id"),
	}, &result)
	if err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	fmt.Fprintf(stdout(c), "%d other sessions invalidated.\n", result.Invalidated)
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(output.TimeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/cli/connection"
	"github.com/yndnr/authmesh-go/internal/cli/output"
	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
)

// DefaultServer is the server address used when none is given.
const DefaultServer = "localhost:2747"

var errTokenRequired = errors.New("session token required (--token or AUTHMESH_SESSION_TOKEN)")

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "authmesh-cli",
		Usage:   "AuthMesh command-line client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			LogoutCommand(),
			MfaCommand(),
			SessionCommand(),
			SystemCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "AuthMesh server address (e.g., localhost:2747)",
			EnvVars: []string{"AUTHMESH_SERVER"},
			Value:   DefaultServer,
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "Session token for session-scoped commands",
			EnvVars: []string{"AUTHMESH_SESSION_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "bypass-secret",
			Usage:   "Rate-limit bypass secret",
			EnvVars: []string{"AUTHMESH_BYPASS_SECRET"},
		},
		&cli.StringFlag{
			Name:  "bypass-header",
			Usage: "Header carrying the bypass secret",
			Value: connection.DefaultBypassHeader,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Server       string
	Token        string
	BypassSecret string
	BypassHeader string
	Output       output.Format
	Wide         bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:       c.String("server"),
		Token:        c.String("token"),
		BypassSecret: c.String("bypass-secret"),
		BypassHeader: c.String("bypass-header"),
		Output:       output.Format(c.String("output")),
		Wide:         c.Bool("wide"),
	}
}

// newClient builds the HTTP client for the global flags.
func newClient(c *cli.Context) *connection.HTTPClient {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server, connection.WithBypass(flags.BypassHeader, flags.BypassSecret))
}

// requireToken returns the session token or errTokenRequired.
func requireToken(c *cli.Context) (string, error) {
	token := c.String("token")
	if token == "" {
		return "", errTokenRequired
	}
	return token, nil
}

// requestContext bounds one command's request.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, connection.DefaultTimeout)
}

// post sends body to path and decodes the response data into target.
func post(c *cli.Context, path string, body, target any) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := newClient(c).Post(ctx, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return connection.ParseResponse(resp, target)
}

// render prints data with the selected formatter.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide).Format(stdout(c), data)
}

// stdout returns the app writer, which tests replace.
func stdout(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// isTable reports whether human-oriented output was requested.
func isTable(c *cli.Context) bool {
	return ParseGlobalFlags(c).Output == output.FormatTable
}

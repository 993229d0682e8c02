package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "authmesh-server",
		Usage:   "Authentication and session service",
		Version: buildinfo.String(),
		Flags:   configFlags(),
		Action:  serveAction,
		Commands: []*cli.Command{
			serveCommand(),
			userCommand(),
			migrateCommand(),
		},
	}
}

// configFlags are accepted before or after any command. A flag that was
// not set leaves the file and environment value alone.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"AUTHMESH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "HTTP listen address (server.http.addr)",
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: memory, badger, bolt or postgres",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Data directory for embedded backends",
		},
		&cli.StringFlag{
			Name:  "postgres-dsn",
			Usage: "PostgreSQL connection string",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error",
		},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":            "server.http.addr",
	"storage-backend": "storage.backend",
	"data-dir":        "storage.data_dir",
	"postgres-dsn":    "storage.postgres_dsn",
	"log-level":       "log.level",
}

func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	for name, key := range flagKeys {
		if v, ok := lookupFlag(c, name); ok {
			overrides[key] = v
		}
	}
	return overrides
}

// lookupFlag finds name set on the command or any of its parents, the
// innermost winning.
func lookupFlag(c *cli.Context, name string) (string, bool) {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet(name) {
			return ctx.String(name), true
		}
	}
	return "", false
}

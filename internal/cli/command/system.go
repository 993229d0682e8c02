package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/cli/connection"
	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
)

type probeResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	Uptime         string `json:"uptime,omitempty"`
	StorageLatency string `json:"storage_latency,omitempty"`
}

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server probes and client version",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: probe("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check that the server can reach its store",
				Action: probe("/ready"),
			},
			{
				Name:   "version",
				Usage:  "Show client build information",
				Action: systemVersion,
			},
		},
	}
}

func probe(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		client := newClient(c)
		resp, err := client.Get(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("server unreachable: %w", err)
		}

		var result probeResponse
		if err := connection.ParseResponse(resp, &result); err != nil {
			return err
		}

		if !isTable(c) {
			return render(c, result)
		}
		fmt.Fprintf(stdout(c), "Server is %s\n", result.Status)
		fmt.Fprintf(stdout(c), "  Target: %s\n", client.BaseURL())
		if result.Version != "" {
			fmt.Fprintf(stdout(c), "  Version: %s\n", result.Version)
		}
		if result.Uptime != "" {
			fmt.Fprintf(stdout(c), "  Uptime: %s\n", result.Uptime)
		}
		if result.StorageLatency != "" {
			fmt.Fprintf(stdout(c), "  Storage latency: %s\n", result.StorageLatency)
		}
		return nil
	}
}

func systemVersion(c *cli.Context) error {
	return render(c, buildinfo.Get())
}

// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Persistent flags fall back to ATTUNED_SERVER and ATTUNED_API_KEY

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/attuned-gateway/internal/client"
)

const defaultServer = "http://127.0.0.1:8080"

// Output formats
const (
	formatPretty = "pretty"
	formatJSON   = "json"
	formatQuiet  = "quiet"
)

// cli carries the resolved persistent flags to every subcommand.
type cli struct {
	server string
	apiKey string
	format string
	out    io.Writer
}

func (c *cli) client() *client.Client {
	return client.New(c.server, c.apiKey)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "attuned",
		Short: "Read and write behavioral state on an attuned gateway",
		Long: `attuned talks to a running attuned-gateway.

It stores per-user axis snapshots, turns them into prompt guidance and runs
message inference. Connection settings come from flags or the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = cmd.OutOrStdout()
			switch c.format {
			case formatPretty, formatJSON, formatQuiet:
				return nil
			default:
				return fmt.Errorf("unknown --format %q (want pretty, json or quiet)", c.format)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.server, "server", envOr("ATTUNED_SERVER", defaultServer), "gateway base URL (env ATTUNED_SERVER)")
	pf.StringVar(&c.apiKey, "api-key", os.Getenv("ATTUNED_API_KEY"), "API key sent as a Bearer token (env ATTUNED_API_KEY)")
	pf.StringVarP(&c.format, "format", "o", formatPretty, "output format: pretty, json or quiet")

	root.AddCommand(
		newStateCmd(c),
		newContextCmd(c),
		newTranslateCmd(c),
		newInferCmd(c),
		newAxesCmd(c),
		newHealthCmd(c),
	)

	return root
}

// parseAxes turns repeated name=value flags into an axis map.
func parseAxes(pairs []string) (map[string]float64, error) {
	axes := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid axis %q (want name=value)", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for axis %s: %w", name, err)
		}
		axes[name] = v
	}
	return axes, nil
}

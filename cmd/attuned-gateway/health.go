// ABOUTME: health subcommand: queries a running gateway's /health endpoint
// ABOUTME: Exits non-zero unless the gateway reports healthy or degraded

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/attuned-gateway/internal/client"
	"github.com/2389/attuned-gateway/internal/health"
)

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}
	return checkHealth(ctx, baseURL(cfg.Server.HTTPAddr), os.Stdout)
}

// baseURL turns a listen address into something dialable. Wildcard hosts
// are replaced by loopback.
func baseURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, ":"):
		addr = "127.0.0.1" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "http://" + addr
}

func checkHealth(ctx context.Context, url string, out io.Writer) error {
	st, err := client.New(url, "").Health(ctx)
	if st == nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	for _, c := range st.Components {
		line := fmt.Sprintf("  %-14s %-10s %dms", c.Name, c.State, c.LatencyMs)
		if c.Message != "" {
			line += "  " + c.Message
		}
		fmt.Fprintln(out, line)
	}

	switch st.Status {
	case health.Healthy:
		fmt.Fprintln(out, color.GreenString("healthy"))
	case health.Degraded:
		fmt.Fprintln(out, color.YellowString("degraded"))
	default:
		return fmt.Errorf("unhealthy: status %s", st.Status)
	}
	return nil
}

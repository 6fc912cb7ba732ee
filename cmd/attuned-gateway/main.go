// ABOUTME: Entry point for the attuned-gateway behavioral state server
// ABOUTME: Subcommands: serve, init, health and version

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/attuned-gateway/internal/config"
	"github.com/2389/attuned-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _   _                        _
   __ _| |_| |_ _   _ _ __   ___  __| |
  / _' | __| __| | | | '_ \ / _ \/ _' |
 | (_| | |_| |_| |_| | | | |  __/ (_| |
  \__,_|\__|\__|\__,_|_| |_|\___|\__,_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: ATTUNED_CONFIG env var > XDG_CONFIG_HOME/attuned/gateway.yaml > ~/.config/attuned/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ATTUNED_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "attuned", "gateway.yaml")
}

// getDataPath returns the attuned data directory.
// Priority: XDG_DATA_HOME/attuned > ~/.local/share/attuned
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "attuned")
}

func printUsage() {
	fmt.Println("Usage: attuned-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the gateway server")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check gateway health")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist. The bool reports whether a file was read.
func loadConfig(path string) (*config.Config, bool, error) {
	if err := config.LoadEnvFilesForConfig(path); err != nil {
		return nil, false, err
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Finalize(); err != nil {
			return nil, false, err
		}
		return cfg, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	gateway.Version = version

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if fromFile {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Print("Config:    ")
		yellow.Println("defaults (no config file)")
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s", cfg.Store.Backend)
	if cfg.Store.EnableHistory {
		gray.Printf(" (history %d)", cfg.Store.MaxHistoryPerUser)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Print("Limit:     ")
	if cfg.RateLimit.Unlimited {
		yellow.Println("unlimited")
	} else {
		fmt.Printf("%d per %s by %s\n", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.KeyStrategy)
	}
	if cfg.Inference.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Inference: enabled")
	}
	if len(cfg.Auth.APIKeys) == 0 {
		yellow.Println("    ! auth disabled: no api_keys configured")
	}

	fmt.Println()

	logger.Info("starting attuned-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Backend,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

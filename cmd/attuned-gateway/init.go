// ABOUTME: init subcommand: writes a gateway config file from interactive prompts
// ABOUTME: Generates a random API key when the operator asks for auth

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/attuned-gateway/internal/config"
)

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("attuned-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	content, err := buildConfig(reader)
	if err != nil {
		return err
	}

	// make sure what we write loads back
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  attuned-gateway serve\n")

	return nil
}

// buildConfig asks the setup questions and renders the YAML.
func buildConfig(reader *bufio.Reader) (string, error) {
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "127.0.0.1:8080")

	fmt.Println("\n--- Store Configuration ---")
	backend := prompt(reader, "Store backend (memory/sqlite/redis/qdrant)", "memory")
	var dbPath, redisAddr, qdrantHost string
	switch backend {
	case "sqlite":
		dbPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "attuned.db"))
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return "", fmt.Errorf("creating data directory: %w", err)
		}
	case "redis":
		redisAddr = prompt(reader, "Redis address", "localhost:6379")
	case "qdrant":
		qdrantHost = prompt(reader, "Qdrant host", "localhost")
	}
	history := yes(prompt(reader, "Keep state history?", "no"))

	fmt.Println("\n--- Auth Configuration ---")
	var apiKey string
	if yes(prompt(reader, "Require an API key?", "yes")) {
		key, err := generateAPIKey()
		if err != nil {
			return "", err
		}
		apiKey = key
	}

	fmt.Println("\n--- Rate Limiting ---")
	maxRequests := prompt(reader, "Requests per minute", "100")

	fmt.Println("\n--- Inference ---")
	inference := yes(prompt(reader, "Enable message inference?", "no"))

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# attuned-gateway configuration\n")
	cfg.WriteString("# Generated by attuned-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("  request_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	if apiKey != "" {
		cfg.WriteString(fmt.Sprintf("  api_keys: [%q]\n", apiKey))
	} else {
		cfg.WriteString("  api_keys: []\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString(fmt.Sprintf("  max_requests: %s\n", maxRequests))
	cfg.WriteString("  window: \"60s\"\n")
	cfg.WriteString("  key_strategy: \"ip\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("store:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	cfg.WriteString(fmt.Sprintf("  enable_history: %t\n", history))
	switch backend {
	case "sqlite":
		cfg.WriteString("  sqlite:\n")
		cfg.WriteString(fmt.Sprintf("    path: %q\n", dbPath))
	case "redis":
		cfg.WriteString("  redis:\n")
		cfg.WriteString(fmt.Sprintf("    addr: %q\n", redisAddr))
	case "qdrant":
		cfg.WriteString("  qdrant:\n")
		cfg.WriteString(fmt.Sprintf("    host: %q\n", qdrantHost))
	}
	cfg.WriteString("\n")

	cfg.WriteString("inference:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", inference))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	if apiKey != "" {
		fmt.Printf("\nGenerated API key: %s\n", apiKey)
		fmt.Println("Clients send it as: Authorization: Bearer <key>")
	}

	return cfg.String(), nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating API key: %w", err)
	}
	return "att_" + hex.EncodeToString(b), nil
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

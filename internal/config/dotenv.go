// ABOUTME: Optional .env loading for the gateway and CLI binaries
// ABOUTME: Missing files are skipped; variables already set in the environment win

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded in priority order: .env.local beats .env.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads each file that exists. godotenv never overwrites a
// variable that is already set, so earlier files take priority over later ones
// and the process environment beats both.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

// LoadEnvFilesForConfig loads the default env files from the working
// directory, then a .env next to the config file.
func LoadEnvFilesForConfig(configPath string) error {
	if err := LoadEnvFiles(); err != nil {
		return err
	}
	if configPath == "" {
		return nil
	}
	return LoadEnvFiles(filepath.Join(filepath.Dir(configPath), ".env"))
}

// Package engine wires C3 through C10 into a single runtime value: one
// DHT transport, one crypto suite, the chunked storage plane, and every
// component built on top of it, following the teacher's "per-component
// explicit engine value, no hidden globals" pattern
// (cmd/rubin-node/main.go + node/config.go).
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the process-level settings a dna-node binary accepts
// (spec.md §9's "dependency-injected handles with lifetime bounded by a
// root Runtime value").
type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	Bootstrap     bool   `json:"bootstrap"`
	PublishDepth  int    `json:"publish_queue_depth"`
	CleanupPeriod string `json:"cleanup_period"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors the teacher's home-directory fallback
// (node/config.go's DefaultDataDir), renamed to this module's own
// on-disk footprint.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".dna-node"
	}
	return filepath.Join(home, ".dna-node")
}

// DefaultConfig returns the settings a freshly installed node starts
// with.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      "info",
		Bootstrap:     false,
		PublishDepth:  256,
		CleanupPeriod: "10m",
	}
}

// ValidateConfig rejects a Config before any directory or store is
// touched, matching the teacher's node.ValidateConfig shape.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.PublishDepth <= 0 {
		return errors.New("publish_queue_depth must be > 0")
	}
	if cfg.PublishDepth > 1_000_000 {
		return errors.New("publish_queue_depth must be <= 1000000")
	}
	return nil
}

// ValueStorePath returns the bootstrap persistence database path under
// a data directory.
func ValueStorePath(dataDir string) string {
	return filepath.Join(dataDir, "valuestore.db")
}

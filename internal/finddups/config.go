// Package finddups wires the archive, record, filestore, and walk layers
// into the two driver binaries (finddups, finddups-diff): layered
// configuration loading and the broker run that answers spec.md's Driver
// responsibilities.
package finddups

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// ErrArchivePathEmpty is returned when a config file sets "archive" to the
// empty string, which would otherwise silently fall back to the default
// and mask a typo in the file.
var ErrArchivePathEmpty = errors.New("finddups: archive path must not be empty")

// ErrConfigFileNotFound is returned when an explicitly named config file
// (--config) does not exist; unlike the global and default project files,
// an explicit path is required to exist.
var ErrConfigFileNotFound = errors.New("finddups: config file not found")

// Config holds every setting that can come from a config file and be
// overridden by CLI flags.
type Config struct {
	Archive        string `json:"archive,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// DefaultArchiveDir is the archive directory used when neither a config
// file nor -a/--archive names one.
const DefaultArchiveDir = "/tmp/finddups"

// DefaultConfigFileName is the project-local config file looked up in the
// working directory when --config is not given.
const DefaultConfigFileName = ".finddups.json"

// DefaultConfig returns the configuration used before any file or flag is
// applied.
func DefaultConfig() Config {
	return Config{
		Archive:        DefaultArchiveDir,
		Concurrency:    10,
		TimeoutSeconds: 600,
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/finddups/config.json, or
// ~/.config/finddups/config.json if XDG_CONFIG_HOME is unset, or "" if the
// home directory cannot be determined.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "finddups", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "finddups", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "finddups", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project/explicit config file. CLI
// flag overrides are applied by the caller on top of the returned Config.
// workDir is the directory DefaultConfigFileName is resolved
// relative to; configPath, if non-empty, names an explicit JSONC file that
// must exist.
func LoadConfig(workDir, configPath string, env []string) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := loadConfigFile(getGlobalConfigPath(env), false)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, globalCfg)

	projectPath := configPath
	mustExist := configPath != ""

	if projectPath == "" {
		projectPath = filepath.Join(workDir, DefaultConfigFileName)
	}

	projectCfg, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	cfg = mergeConfig(cfg, projectCfg)

	if cfg.Archive == "" {
		return Config{}, ErrArchivePathEmpty
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled configuration
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, nil
		}

		return Config{}, fmt.Errorf("finddups: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("finddups: %s: invalid JSONC: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("finddups: %s: invalid JSON: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(standardized, &raw); err == nil {
		if v, ok := raw["archive"]; ok && v == "" {
			return Config{}, fmt.Errorf("%w: %s", ErrArchivePathEmpty, path)
		}
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Archive != "" {
		base.Archive = overlay.Archive
	}

	if overlay.Concurrency != 0 {
		base.Concurrency = overlay.Concurrency
	}

	if overlay.TimeoutSeconds != 0 {
		base.TimeoutSeconds = overlay.TimeoutSeconds
	}

	return base
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	Root            string   `json:"root"`
	Database        string   `json:"database"`
	DocumentBackend bool     `json:"document_backend"`
	Workers         int      `json:"workers"`
	InsertTimeout   Duration `json:"insert_timeout"`
	LogLevel        string   `json:"log_level"`
	LogFormat       string   `json:"log_format"`
	LogFile         string   `json:"log_file,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".tunedb.json"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Root:      "abc_books",
		Database:  filepath.Join(home, ".tunedb.sqlite"),
		Workers:   1,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// globalConfigPath returns $XDG_CONFIG_HOME/tunedb/config.json, falling back
// to ~/.config/tunedb/config.json. Empty if neither can be determined.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "tunedb", "config.json")
	}
	home := env["HOME"]
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "tunedb", "config.json")
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file in workDir (.tunedb.json, if exists)
// 4. Explicit config file via configPath (if non-empty)
//
// CLI flag overrides are applied by the caller.
func LoadConfig(workDir, configPath string, env map[string]string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()
	var sources ConfigSources

	if p := globalConfigPath(env); p != "" {
		globalCfg, loaded, err := loadConfigFile(p, false)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}
		if loaded {
			sources.Global = p
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	cfgFile, mustExist := filepath.Join(workDir, ConfigFileName), false
	if configPath != "" {
		cfgFile, mustExist = configPath, true
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}
	}
	projectCfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}
	if loaded {
		sources.Project = cfgFile
		cfg = mergeConfig(cfg, projectCfg)
	}

	if cfg.Root != "" && !filepath.IsAbs(cfg.Root) && !strings.HasPrefix(cfg.Root, "~") {
		cfg.Root = filepath.Join(workDir, cfg.Root)
	}
	return cfg, sources, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files return zero config.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}
			return Config{}, false, nil
		}
		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Root != "" {
		base.Root = overlay.Root
	}
	if overlay.Database != "" {
		base.Database = overlay.Database
	}
	if overlay.DocumentBackend {
		base.DocumentBackend = true
	}
	if overlay.Workers != 0 {
		base.Workers = overlay.Workers
	}
	if overlay.InsertTimeout != 0 {
		base.InsertTimeout = overlay.InsertTimeout
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}
	if overlay.LogFile != "" {
		base.LogFile = overlay.LogFile
	}
	return base
}

func validateConfig(cfg Config) error {
	if cfg.Root == "" {
		return errRootEmpty
	}
	if cfg.Database == "" {
		return errDatabaseEmpty
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.InsertTimeout < 0 {
		return errors.New("insert_timeout cannot be negative")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}

// FormatConfig returns the config as formatted JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}

// truePath expands a leading ~ and makes path absolute.
func truePath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

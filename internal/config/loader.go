package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration for repoRoot. Layers, later wins:
// defaults, YAML file, <repoRoot>/.env, process environment.
// An empty path falls back to <repoRoot>/.lowvibe/config.yaml, then the
// user config directory; a missing default file is not an error.
func Load(path, repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = findConfigFile(repoRoot)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	dotenv, err := readDotenv(filepath.Join(repoRoot, ".env"))
	if err != nil {
		return nil, err
	}
	loadFromEnv(cfg, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(repoRoot string) string {
	if repoRoot != "" {
		local := filepath.Join(repoRoot, ".lowvibe", "config.yaml")
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lowvibe", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "lowvibe", "config.yaml")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vals, nil
}

// loadFromEnv applies LOWVIBE_* overrides.
func loadFromEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("LOWVIBE_BACKEND"); v != "" {
		cfg.Oracle.Backend = v
	}
	if v := getenv("LOWVIBE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := getenv("LOWVIBE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	} else if v := getenv("OLLAMA_HOST"); v != "" && cfg.Oracle.Backend == "ollama" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Oracle.BaseURL = v
	}

	// Priority: LOWVIBE_API_KEY > GEMINI_API_KEY
	if v := getenv("LOWVIBE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	} else if v := getenv("GEMINI_API_KEY"); v != "" && cfg.Oracle.Backend == "gemini" {
		cfg.Oracle.APIKey = v
	}

	setInt(&cfg.Oracle.ContextLength, getenv("LOWVIBE_CONTEXT_LENGTH"))
	setInt(&cfg.Oracle.RequestsPerMinute, getenv("LOWVIBE_RPM"))
	setInt(&cfg.Agent.MaxSteps, getenv("LOWVIBE_MAX_STEPS"))
	setDuration(&cfg.Agent.CommandTimeout, getenv("LOWVIBE_COMMAND_TIMEOUT"))
	if v := getenv("LOWVIBE_MULTI"); v != "" {
		cfg.Agent.Multi, _ = strconv.ParseBool(v)
	}
	if v := getenv("LOWVIBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("LOWVIBE_EVENTS_LISTEN"); v != "" {
		cfg.Events.Listen = v
	}
}

func setInt(dst *int, raw string) {
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil {
		*dst = n
	}
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Oracle.Backend {
	case "ollama":
	case "gemini":
		if c.Oracle.APIKey == "" {
			return ErrMissingAuth
		}
	default:
		return ConfigError(fmt.Sprintf("unknown oracle backend %q (want ollama or gemini)", c.Oracle.Backend))
	}
	if c.Oracle.Model == "" {
		return ErrMissingModel
	}
	if c.Oracle.ContextLength <= 0 {
		return ConfigError("oracle.context_length must be positive")
	}
	if c.Agent.MaxSteps <= 0 {
		return ConfigError("agent.max_steps must be positive")
	}
	if c.Context.Threshold <= 0 || c.Context.Threshold > 1 {
		return ConfigError("context.threshold must be in (0, 1]")
	}
	if c.Context.KeepToolPairs < 0 || c.Context.RecentMessages < 0 {
		return ConfigError("context window sizes must not be negative")
	}
	s := c.Supervisor
	if s.Enabled {
		if s.Interval <= 0 {
			return ConfigError("supervisor.interval must be positive")
		}
		if s.PreserveFloor < 1 || s.PreserveFloor > s.PreserveLast {
			return ConfigError("supervisor.preserve_floor must be between 1 and preserve_last")
		}
		if s.ViewMessages < s.PreserveFirst+1+s.PreserveFloor {
			return ConfigError("supervisor.view_messages too small for the preserved head and tail")
		}
		if s.OverflowRetries <= 0 || s.ValidationRetries <= 0 {
			return ConfigError("supervisor retry budgets must be positive")
		}
	}
	if c.Backup.Keep <= 0 {
		return ConfigError("backup.keep must be positive")
	}
	return nil
}

// ConfigError is a configuration validation failure.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth  ConfigError = "missing authentication: set LOWVIBE_API_KEY or GEMINI_API_KEY for the gemini backend"
	ErrMissingModel ConfigError = "missing model: set oracle.model or LOWVIBE_MODEL"
)

// Resolve returns p made absolute against repoRoot.
func Resolve(repoRoot, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}

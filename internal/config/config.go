package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"relaybot/internal/domain"
)

// Config is the root configuration for relaybot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Generator GeneratorConfig `json:"generator"`
	History   HistoryConfig   `json:"history"`
	Channels  ChannelsConfig  `json:"channels"`
	Observer  ObserverConfig  `json:"observer"`
	Archive   ArchiveConfig   `json:"archive"`
}

type GeneralConfig struct {
	LogLevel     string `json:"logLevel"`
	ReplyDelayMs int    `json:"replyDelayMs"` // artificial typing delay before each reply
	PersonaPath  string `json:"personaPath,omitempty"`
}

// GeneratorConfig selects and configures the text-generation backend.
type GeneratorConfig struct {
	Backend     string  `json:"backend"` // "openai" | "ollama"
	APIKey      string  `json:"apiKey,omitempty"`
	APIBase     string  `json:"apiBase,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type HistoryConfig struct {
	MaxLength         int `json:"maxLength"`         // per-conversation sliding window
	EvictAfterHours   int `json:"evictAfterHours"`   // conversation max idle age
	SweepEveryMinutes int `json:"sweepEveryMinutes"` // eviction sweep interval
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Console  ConsoleConfig  `json:"console"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"` // user IDs; empty = allow all
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

type ObserverConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, parses, and validates the config file.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, domain.WrapErr(domain.KindConfiguration, "config.load", err)
	}

	cfg.Archive.DBPath = ExpandPath(cfg.Archive.DBPath)
	cfg.General.PersonaPath = ExpandPath(cfg.General.PersonaPath)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks ranges and that the selected backend has its
// required fields. Failures are configuration errors: fatal at
// startup, before any transport or generator use.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Generator.Backend {
	case "", "openai":
		if cfg.Generator.APIKey == "" {
			errs = append(errs, "generator.apiKey is required for the openai backend")
		}
	case "ollama":
		// No credentials required.
	default:
		errs = append(errs, fmt.Sprintf("generator.backend must be openai or ollama, got %q", cfg.Generator.Backend))
	}
	if cfg.Generator.MaxTokens < 1 {
		errs = append(errs, "generator.maxTokens must be >= 1")
	}
	if cfg.Generator.Temperature < 0 || cfg.Generator.Temperature > 2 {
		errs = append(errs, "generator.temperature must be between 0 and 2")
	}

	if cfg.History.MaxLength < 1 {
		errs = append(errs, "history.maxLength must be >= 1")
	}
	if cfg.History.EvictAfterHours < 1 {
		errs = append(errs, "history.evictAfterHours must be >= 1")
	}
	if cfg.History.SweepEveryMinutes < 1 {
		errs = append(errs, "history.sweepEveryMinutes must be >= 1")
	}

	if cfg.General.ReplyDelayMs < 0 {
		errs = append(errs, "general.replyDelayMs must be >= 0")
	}

	if cfg.Observer.Port < 0 || cfg.Observer.Port > 65535 {
		errs = append(errs, "observer.port must be between 0 and 65535")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Archive.Enabled && cfg.Archive.DBPath == "" {
		errs = append(errs, "archive.dbPath is required when the archive is enabled")
	}

	if len(errs) > 0 {
		return domain.Errf(domain.KindConfiguration, "config.validate",
			"config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sanitize returns a copy with credentials masked for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Generator.APIKey != "" {
		out.Generator.APIKey = "***"
	}
	if out.Channels.Telegram.Token != "" {
		out.Channels.Telegram.Token = "***"
	}
	return &out
}

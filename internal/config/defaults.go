package config

import "path/filepath"

// Defaults returns the baseline configuration. Load unmarshals the
// config file over it, so absent keys keep these values.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:     "info",
			ReplyDelayMs: 1500,
		},
		Generator: GeneratorConfig{
			Backend:     "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.7,
		},
		History: HistoryConfig{
			MaxLength:        100,
			EvictAfterHours:  24,
			SweepEveryMinutes: 30,
		},
		Channels: ChannelsConfig{
			Console: ConsoleConfig{Enabled: true},
		},
		Observer: ObserverConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			DBPath:  filepath.Join(DefaultConfigDir(), "archive.db"),
		},
	}
}

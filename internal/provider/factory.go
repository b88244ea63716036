package provider

import (
	"log/slog"

	"relaybot/internal/config"
	"relaybot/internal/domain"
)

// New builds the generator selected by the config backend enum. The
// persona system instruction is baked into the client so every request
// carries it ahead of the dialogue turns.
func New(cfg config.GeneratorConfig, system string, logger *slog.Logger) (domain.Generator, error) {
	switch cfg.Backend {
	case "openai", "":
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			APIBase:     cfg.APIBase,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			System:      system,
			Logger:      logger,
		}), nil
	case "ollama":
		return NewOllama(OllamaConfig{
			APIBase:     cfg.APIBase,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			System:      system,
			Logger:      logger,
		}), nil
	default:
		return nil, domain.Errf(domain.KindConfiguration, "provider.new",
			"unknown generator backend %q (want openai or ollama)", cfg.Backend)
	}
}

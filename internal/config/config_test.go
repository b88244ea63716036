package config

import (
	"os"
	"path/filepath"
	"testing"

	"relaybot/internal/domain"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTemp(t, "config.json", `{"generator": {"apiKey": "k"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.History.MaxLength != 100 {
		t.Errorf("default history.maxLength: expected 100, got %d", cfg.History.MaxLength)
	}
	if cfg.General.ReplyDelayMs != 1500 {
		t.Errorf("default replyDelayMs: expected 1500, got %d", cfg.General.ReplyDelayMs)
	}
	if cfg.Generator.Backend != "openai" {
		t.Errorf("default backend: expected openai, got %s", cfg.Generator.Backend)
	}
}

func TestLoad_MissingCredentialIsConfigurationError(t *testing.T) {
	path := writeTemp(t, "config.json", `{"generator": {"backend": "openai"}}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation failure without apiKey")
	}
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Errorf("expected configuration error kind, got %v", err)
	}
}

func TestLoad_OllamaNeedsNoCredential(t *testing.T) {
	path := writeTemp(t, "config.json", `{"generator": {"backend": "ollama"}}`)
	if _, err := Load(path); err != nil {
		t.Errorf("ollama backend should validate without credentials: %v", err)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Generator.Backend = "carrier-pigeon"
	err := Validate(cfg)
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero history length", func(c *Config) { c.History.MaxLength = 0 }},
		{"zero max tokens", func(c *Config) { c.Generator.MaxTokens = 0 }},
		{"negative delay", func(c *Config) { c.General.ReplyDelayMs = -1 }},
		{"bad observer port", func(c *Config) { c.Observer.Port = 70000 }},
		{"telegram without token", func(c *Config) { c.Channels.Telegram.Enabled = true }},
		{"archive without path", func(c *Config) { c.Archive.Enabled = true; c.Archive.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Generator.APIKey = "k"
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RELAYBOT_TEST_KEY", "secret123")

	got := ExpandEnvVars(`{"apiKey": "${RELAYBOT_TEST_KEY}"}`)
	if got != `{"apiKey": "secret123"}` {
		t.Errorf("env expansion failed: %s", got)
	}

	got = ExpandEnvVars(`${RELAYBOT_UNSET_VAR:-fallback}`)
	if got != "fallback" {
		t.Errorf("default expansion failed: %s", got)
	}

	got = ExpandEnvVars(`${RELAYBOT_UNSET_VAR}`)
	if got != "${RELAYBOT_UNSET_VAR}" {
		t.Errorf("unset var without default should stay literal: %s", got)
	}
}

func TestLoadPersona(t *testing.T) {
	path := writeTemp(t, "persona.yaml", "name: concierge\ninstruction: |\n  Be extremely formal.\ntemperature: 0.4\n")

	p, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("load persona: %v", err)
	}
	if p.Name != "concierge" {
		t.Errorf("name: got %s", p.Name)
	}
	if p.Temperature != 0.4 {
		t.Errorf("temperature: got %v", p.Temperature)
	}

	gc := p.Apply(GeneratorConfig{Temperature: 0.9, MaxTokens: 256})
	if gc.Temperature != 0.4 {
		t.Errorf("persona temperature should override, got %v", gc.Temperature)
	}
	if gc.MaxTokens != 256 {
		t.Errorf("unset persona maxTokens should not override, got %d", gc.MaxTokens)
	}
}

func TestLoadPersona_EmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPersona("")
	if err != nil {
		t.Fatalf("default persona: %v", err)
	}
	if p.Instruction != DefaultInstruction {
		t.Error("expected default instruction")
	}
}

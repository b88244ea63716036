package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relaybot/internal/domain"
)

// Ollama implements domain.Generator for a local Ollama server. Ollama
// exposes no usable finish-reason signal for confidence purposes, so
// every reply carries the fixed default.
type Ollama struct {
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	system      string
	client      *http.Client
	logger      *slog.Logger
}

type OllamaConfig struct {
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64
	System      string
	Logger      *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      cfg.System,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		logger:      cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// ValidateConfiguration: Ollama needs no credentials, only a model.
func (o *Ollama) ValidateConfiguration() bool {
	return o.model != ""
}

func (o *Ollama) TestConnectivity(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("ollama not reachable", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) Generate(ctx context.Context, userText string, turns []domain.DialogueTurn) (*domain.GeneratedReply, error) {
	msgs := make([]ollamaMessage, 0, len(turns)+2)
	if o.system != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: o.system})
	}
	for _, turn := range turns {
		msgs = append(msgs, ollamaMessage{Role: turn.Role, Content: turn.Text})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: userText})

	options := make(map[string]any)
	if o.maxTokens > 0 {
		options["num_predict"] = o.maxTokens
	}
	if o.temperature > 0 {
		options["temperature"] = o.temperature
	}

	jsonBody, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "ollama.generate", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "ollama.generate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "ollama.generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.Errf(domain.KindGeneration, "ollama.generate",
			"backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "ollama.generate", err)
	}

	text := strings.TrimSpace(ollamaResp.Message.Content)
	confidence := ConfidenceDefault
	if text == "" {
		text = FallbackReply
		confidence = ConfidenceLow
	}

	return &domain.GeneratedReply{
		Text:       text,
		Confidence: confidence,
		ProducedAt: time.Now(),
	}, nil
}

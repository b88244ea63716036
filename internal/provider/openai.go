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

// OpenAI implements domain.Generator for OpenAI-compatible chat APIs.
type OpenAI struct {
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	system      string
	client      *http.Client
	logger      *slog.Logger
}

type OpenAIConfig struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64
	System      string // persona instruction prepended to every request
	Logger      *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:      cfg.APIKey,
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      cfg.System,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		logger:      cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// ValidateConfiguration checks required credential and model fields.
func (o *OpenAI) ValidateConfiguration() bool {
	return o.apiKey != "" && o.model != ""
}

// TestConnectivity probes the models endpoint. Startup-time only.
func (o *OpenAI) TestConnectivity(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("openai not reachable", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

// Generate submits the persona instruction, the dialogue turns, and the
// new user text as one chat completion request. The turns arrive
// already windowed; they are passed through untouched.
func (o *OpenAI) Generate(ctx context.Context, userText string, turns []domain.DialogueTurn) (*domain.GeneratedReply, error) {
	msgs := make([]oaiMessage, 0, len(turns)+2)
	if o.system != "" {
		msgs = append(msgs, oaiMessage{Role: "system", Content: o.system})
	}
	for _, turn := range turns {
		msgs = append(msgs, oaiMessage{Role: turn.Role, Content: turn.Text})
	}
	msgs = append(msgs, oaiMessage{Role: "user", Content: userText})

	body := oaiRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: o.maxTokens,
	}
	if o.temperature > 0 {
		body.Temperature = &o.temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "openai.generate", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "openai.generate", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "openai.generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.Errf(domain.KindGeneration, "openai.generate",
			"backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, domain.WrapErr(domain.KindGeneration, "openai.generate", err)
	}

	if len(oaiResp.Choices) == 0 {
		// Backend succeeded with nothing usable: degraded, not failed.
		return &domain.GeneratedReply{
			Text:       FallbackReply,
			Confidence: ConfidenceLow,
			ProducedAt: time.Now(),
		}, nil
	}

	choice := oaiResp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	confidence := confidenceFromFinishReason(choice.FinishReason)
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

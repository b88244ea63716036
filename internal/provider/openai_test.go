package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaybot/internal/domain"
)

func oaiServer(t *testing.T, finishReason, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			http.Error(w, "backend exploded", status)
			return
		}
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		resp := oaiResponse{Choices: []oaiChoice{{
			Message:      oaiMessage{Role: "assistant", Content: content},
			FinishReason: finishReason,
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestOpenAI(base string) *OpenAI {
	return NewOpenAI(OpenAIConfig{APIKey: "test-key", APIBase: base, Model: "test-model", System: "be helpful"})
}

func TestOpenAI_Generate_CleanCompletion(t *testing.T) {
	srv := oaiServer(t, "stop", "hello there", http.StatusOK)
	defer srv.Close()

	reply, err := newTestOpenAI(srv.URL).Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "hello there" {
		t.Errorf("text: got %q", reply.Text)
	}
	if reply.Confidence != ConfidenceHigh {
		t.Errorf("confidence: expected %v, got %v", ConfidenceHigh, reply.Confidence)
	}
	if reply.ProducedAt.IsZero() {
		t.Error("producedAt not set")
	}
}

func TestOpenAI_Generate_TruncatedGetsMediumConfidence(t *testing.T) {
	srv := oaiServer(t, "length", "cut off mid", http.StatusOK)
	defer srv.Close()

	reply, err := newTestOpenAI(srv.URL).Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Confidence != ConfidenceMedium {
		t.Errorf("truncated completion must be medium confidence, got %v", reply.Confidence)
	}
	if reply.Confidence == ConfidenceHigh {
		t.Error("truncated completion must not be high confidence")
	}
}

func TestOpenAI_Generate_ContentFilteredGetsLowConfidence(t *testing.T) {
	srv := oaiServer(t, "content_filter", "", http.StatusOK)
	defer srv.Close()

	reply, err := newTestOpenAI(srv.URL).Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Confidence != ConfidenceLow {
		t.Errorf("expected low confidence, got %v", reply.Confidence)
	}
}

func TestOpenAI_Generate_EmptyTextFallsBack(t *testing.T) {
	srv := oaiServer(t, "stop", "   ", http.StatusOK)
	defer srv.Close()

	reply, err := newTestOpenAI(srv.URL).Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("empty completion is degraded success, not failure: %v", err)
	}
	if reply.Text != FallbackReply {
		t.Errorf("expected fallback apology, got %q", reply.Text)
	}
}

func TestOpenAI_Generate_BackendFailure(t *testing.T) {
	srv := oaiServer(t, "", "", http.StatusInternalServerError)
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error on non-2xx")
	}
	if !domain.IsKind(err, domain.KindGeneration) {
		t.Errorf("expected generation error kind, got %v", err)
	}
}

func TestOpenAI_Generate_SystemAndTurnsOrdering(t *testing.T) {
	var captured oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		resp := oaiResponse{Choices: []oaiChoice{{
			Message:      oaiMessage{Role: "assistant", Content: "ok"},
			FinishReason: "stop",
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	turns := []domain.DialogueTurn{
		{Role: domain.RoleUser, Text: "first"},
		{Role: domain.RoleAssistant, Text: "second"},
	}
	if _, err := newTestOpenAI(srv.URL).Generate(context.Background(), "third", turns); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(captured.Messages) != 4 {
		t.Fatalf("expected system + 2 turns + user, got %d messages", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "be helpful" {
		t.Errorf("system instruction must come first, got %+v", captured.Messages[0])
	}
	if captured.Messages[1].Content != "first" || captured.Messages[2].Content != "second" {
		t.Error("dialogue turns must keep their order")
	}
	if captured.Messages[3].Role != "user" || captured.Messages[3].Content != "third" {
		t.Errorf("new user text must come last, got %+v", captured.Messages[3])
	}
}

func TestOpenAI_ValidateConfiguration(t *testing.T) {
	if !newTestOpenAI("http://x").ValidateConfiguration() {
		t.Error("key+model should validate")
	}
	missing := NewOpenAI(OpenAIConfig{Model: "m"})
	if missing.ValidateConfiguration() {
		t.Error("missing api key must not validate")
	}
}

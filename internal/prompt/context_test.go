package prompt

import (
	"fmt"
	"testing"

	"relaybot/internal/domain"
)

const botID = "bot@transport"

func userMsg(body string, ts int64) domain.Message {
	return domain.Message{ID: fmt.Sprintf("u%d", ts), From: "user@transport", To: botID, Timestamp: ts, Kind: domain.KindText, Body: body}
}

func botMsg(body string, ts int64) domain.Message {
	return domain.Message{ID: fmt.Sprintf("bot-%d", ts), From: botID, To: "user@transport", Timestamp: ts, Kind: domain.KindText, Body: body}
}

func TestBuildDialogueTurns_WindowAndBlankDrop(t *testing.T) {
	// 12 messages, alternating user/bot; message index 5 (inside the
	// 10-message window) has a blank body.
	var msgs []domain.Message
	for i := 0; i < 12; i++ {
		body := fmt.Sprintf("message %d", i)
		if i == 5 {
			body = "   "
		}
		if i%2 == 0 {
			msgs = append(msgs, userMsg(body, int64(i)))
		} else {
			msgs = append(msgs, botMsg(body, int64(i)))
		}
	}

	turns := BuildDialogueTurns(msgs, botID, 10)

	// 10 selected minus the blank one.
	if len(turns) != 9 {
		t.Fatalf("expected 9 turns, got %d", len(turns))
	}
	if turns[0].Text != "message 2" {
		t.Errorf("expected oldest selected message first, got %q", turns[0].Text)
	}
	// Roles follow the bot-identity rule across the surviving turns.
	wantIdx := []int{2, 3, 4, 6, 7, 8, 9, 10, 11}
	for i, idx := range wantIdx {
		wantRole := domain.RoleUser
		if idx%2 == 1 {
			wantRole = domain.RoleAssistant
		}
		if turns[i].Role != wantRole {
			t.Errorf("turn %d (msg %d): expected role %s, got %s", i, idx, wantRole, turns[i].Role)
		}
	}
}

func TestBuildDialogueTurns_DefaultWindow(t *testing.T) {
	var msgs []domain.Message
	for i := 0; i < 25; i++ {
		msgs = append(msgs, userMsg(fmt.Sprintf("m%d", i), int64(i)))
	}
	turns := BuildDialogueTurns(msgs, botID, 0)
	if len(turns) != DefaultWindowSize {
		t.Errorf("expected default window of %d, got %d", DefaultWindowSize, len(turns))
	}
	if turns[0].Text != "m15" {
		t.Errorf("expected window to start at m15, got %q", turns[0].Text)
	}
}

func TestBuildDialogueTurns_Empty(t *testing.T) {
	if turns := BuildDialogueTurns(nil, botID, 10); len(turns) != 0 {
		t.Errorf("expected no turns for empty history, got %d", len(turns))
	}
}

func TestExtractTopics_CapAndStopWords(t *testing.T) {
	msgs := []domain.Message{
		userMsg("this is about kubernetes deployments", 1),
		userMsg("they will have scaling scaling problems soon", 2),
		userMsg("database migrations latency throughput capacity", 3),
	}

	topics := ExtractTopics(msgs, 5, 5)

	if len(topics) > 5 {
		t.Fatalf("cap violated: %d topics", len(topics))
	}
	for _, topic := range topics {
		if _, stop := stopWords[topic]; stop {
			t.Errorf("stop word leaked: %q", topic)
		}
		if len(topic) < minTopicLength {
			t.Errorf("short token leaked: %q", topic)
		}
	}
	// First 5 qualifying tokens in scan order; repeats are kept and
	// "this", "is", "about", "they", "will", "have" are filtered.
	want := []string{"kubernetes", "deployments", "scaling", "scaling", "problems"}
	for i, w := range want {
		if topics[i] != w {
			t.Errorf("topic %d: expected %q, got %q (all: %v)", i, w, topics[i], topics)
		}
	}
}

func TestExtractTopics_Lowercases(t *testing.T) {
	topics := ExtractTopics([]domain.Message{userMsg("Deploy KUBERNETES Tomorrow", 1)}, 5, 5)
	want := []string{"deploy", "kubernetes", "tomorrow"}
	if len(topics) != len(want) {
		t.Fatalf("expected %v, got %v", want, topics)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topic %d: expected %q, got %q", i, want[i], topics[i])
		}
	}
}

func TestExtractTopics_WindowSelectsTail(t *testing.T) {
	var msgs []domain.Message
	for i := 0; i < 8; i++ {
		msgs = append(msgs, userMsg(fmt.Sprintf("unique%d", i), int64(i)))
	}
	topics := ExtractTopics(msgs, 5, 10)
	if len(topics) != 5 {
		t.Fatalf("expected 5 topics from 5-message window, got %d", len(topics))
	}
	if topics[0] != "unique3" {
		t.Errorf("expected window tail to start at unique3, got %q", topics[0])
	}
}

func TestExtractTopics_EmptyHistory(t *testing.T) {
	if topics := ExtractTopics(nil, 5, 5); len(topics) != 0 {
		t.Errorf("expected no topics, got %v", topics)
	}
}

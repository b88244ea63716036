package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind classifies the payload of an inbound message. Non-text
// kinds carry extracted caption or title text in Body, or nothing.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"
)

// BotIDPrefix marks messages synthesized by the bot itself.
const BotIDPrefix = "bot-"

// Message is one unit of conversation, created by a transport adapter
// on receipt or synthesized for outbound bot replies.
type Message struct {
	ID         string      `json:"id"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Timestamp  int64       `json:"timestamp"` // milliseconds since epoch
	Kind       MessageKind `json:"kind"`
	Body       string      `json:"body"`
	IsGroup    bool        `json:"isGroup"`
	GroupID    string      `json:"groupId,omitempty"`
	SenderName string      `json:"senderName,omitempty"`
}

// NewBotMessage synthesizes a bot-origin reply message. The ID prefix
// lets downstream consumers tell bot messages from transport ones.
func NewBotMessage(botID, to, body string) Message {
	return Message{
		ID:        BotIDPrefix + uuid.NewString(),
		From:      botID,
		To:        to,
		Timestamp: time.Now().UnixMilli(),
		Kind:      KindText,
		Body:      body,
	}
}

// IsFromBot reports whether the message was synthesized by the bot.
func (m Message) IsFromBot() bool {
	return strings.HasPrefix(m.ID, BotIDPrefix)
}

// DialogueTurn is a role-tagged text unit submitted to the generator.
type DialogueTurn struct {
	Role string `json:"role"` // "user" | "assistant"
	Text string `json:"text"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GeneratedReply is the value produced by one generation call. It is
// ephemeral: consumed by the orchestrator, never stored as-is.
type GeneratedReply struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"` // 0.0-1.0, backend-dependent heuristic
	Topics     []string  `json:"topics,omitempty"`
	ProducedAt time.Time `json:"producedAt"`
}

// ProcessingOutcome summarizes one inbound-message processing attempt.
type ProcessingOutcome struct {
	Success     bool   `json:"success"`
	ReplyText   string `json:"replyText,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
	ElapsedMS   int64  `json:"elapsedMillis"`
}

// HistoryStats is an aggregate over one conversation's buffer.
// All fields are zero when the conversation is unknown.
type HistoryStats struct {
	Count                int     `json:"count"`
	LastMessageTimestamp int64   `json:"lastMessageTimestamp"`
	AverageBodyLength    float64 `json:"averageBodyLength"`
}

package history

import (
	"encoding/json"

	"relaybot/internal/domain"
)

// exportBlob is the self-describing export format for one
// conversation's full state.
type exportBlob struct {
	ChatID        string           `json:"chatId"`
	Messages      []domain.Message `json:"messages"`
	LastUpdatedAt int64            `json:"lastUpdatedAt"`
}

// Serialize round-trips one conversation's full state to an encoded
// form suitable for export. An unknown chat id serializes to an empty
// conversation under that id.
func (s *Store) Serialize(chatID string) ([]byte, error) {
	s.mu.RLock()
	blob := exportBlob{ChatID: chatID}
	if conv, ok := s.conversations[chatID]; ok {
		blob.Messages = make([]domain.Message, len(conv.messages))
		copy(blob.Messages, conv.messages)
		blob.LastUpdatedAt = conv.lastUpdatedAt
	}
	s.mu.RUnlock()

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, domain.WrapErr(domain.KindInternalStore, "history.serialize", err)
	}
	return data, nil
}

// Deserialize replaces the conversation state for chatID with the
// decoded blob. The embedded chat id must match the target; on any
// failure the existing state for chatID is left untouched and a
// ValidationError is returned.
func (s *Store) Deserialize(chatID string, data []byte) error {
	var blob exportBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return domain.WrapErr(domain.KindValidation, "history.deserialize", err)
	}
	if blob.ChatID != chatID {
		return domain.Errf(domain.KindValidation, "history.deserialize",
			"chat id mismatch: blob is for %q, target is %q", blob.ChatID, chatID)
	}

	msgs := blob.Messages
	if len(msgs) > s.maxLength {
		msgs = msgs[len(msgs)-s.maxLength:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &conversation{
		messages:      make([]domain.Message, len(msgs)),
		lastUpdatedAt: blob.LastUpdatedAt,
	}
	copy(conv.messages, msgs)
	s.conversations[chatID] = conv
	return nil
}

// DecodeExport validates an export blob without importing it. Used by
// the CLI to inspect exported files.
func DecodeExport(data []byte) (chatID string, count int, lastUpdatedAt int64, err error) {
	var blob exportBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return "", 0, 0, domain.WrapErr(domain.KindValidation, "history.decode", err)
	}
	if blob.ChatID == "" {
		return "", 0, 0, domain.Errf(domain.KindValidation, "history.decode", "blob has no chat id")
	}
	return blob.ChatID, len(blob.Messages), blob.LastUpdatedAt, nil
}

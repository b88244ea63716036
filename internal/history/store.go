// Package history owns the per-conversation message buffers. Buffers
// are bounded sliding windows kept in memory only; nothing here
// survives a restart. The store is a best-effort convenience structure,
// not a record of truth, so its operations never surface internal
// faults to callers.
package history

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const defaultMaxLength = 100

// conversation is the buffer for one chat id. Messages are kept in
// insertion order, oldest first.
type conversation struct {
	messages      []domain.Message
	lastUpdatedAt int64 // milliseconds since epoch
}

// Store holds every conversation buffer behind one mutex. The mutex is
// held per operation only, never across an append-window-generate
// sequence, so maintenance sweeps don't serialize against the
// processing hot path.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxLength     int
	logger        *slog.Logger
	now           func() time.Time // test seam
}

// New creates a Store keeping at most maxLength messages per
// conversation.
func New(maxLength int, logger *slog.Logger) *Store {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: make(map[string]*conversation),
		maxLength:     maxLength,
		logger:        logger,
		now:           time.Now,
	}
}

// MaxLength returns the configured per-conversation cap.
func (s *Store) MaxLength() int { return s.maxLength }

// Append adds a message to the conversation, creating the buffer on
// first use and truncating to the most recent maxLength entries. It
// never fails: internal faults are logged and swallowed.
func (s *Store) Append(chatID string, msg domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			err := domain.Errf(domain.KindInternalStore, "history.append", "%v", r)
			s.logger.Error("history append fault swallowed", "chat", chatID, "err", err)
			metrics.StoreFaults.Inc()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[chatID]
	if !ok {
		conv = &conversation{}
		s.conversations[chatID] = conv
	}

	conv.messages = append(conv.messages, msg)
	if n := len(conv.messages); n > s.maxLength {
		// Slide the window: drop oldest, keep the most recent maxLength.
		copy(conv.messages, conv.messages[n-s.maxLength:])
		conv.messages = conv.messages[:s.maxLength]
	}
	conv.lastUpdatedAt = s.now().UnixMilli()
}

// Recent returns the last min(n, len) messages in original order. An
// unknown chat id yields an empty slice, never an error.
func (s *Store) Recent(chatID string, n int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[chatID]
	if !ok || n <= 0 {
		return nil
	}
	msgs := conv.messages
	if n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// ContextWindow returns the chronological tail used to ground
// generation. Identical to Recent; kept as a named operation so the
// windowing contract is independently testable.
func (s *Store) ContextWindow(chatID string, n int) []domain.Message {
	return s.Recent(chatID, n)
}

// Clear removes the conversation entirely. Idempotent.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, chatID)
}

// Search returns messages whose body contains query, case-insensitive,
// in original order.
func (s *Store) Search(chatID, query string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[chatID]
	if !ok {
		return nil
	}
	needle := strings.ToLower(query)
	var out []domain.Message
	for _, m := range conv.messages {
		if strings.Contains(strings.ToLower(m.Body), needle) {
			out = append(out, m)
		}
	}
	return out
}

// ByTimeRange returns messages with start <= timestamp <= end.
func (s *Store) ByTimeRange(chatID string, start, end int64) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[chatID]
	if !ok {
		return nil
	}
	var out []domain.Message
	for _, m := range conv.messages {
		if m.Timestamp >= start && m.Timestamp <= end {
			out = append(out, m)
		}
	}
	return out
}

// Stats aggregates one conversation's buffer. All zero values for an
// unknown chat id.
func (s *Store) Stats(chatID string) domain.HistoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[chatID]
	if !ok || len(conv.messages) == 0 {
		return domain.HistoryStats{}
	}

	var totalLen int
	for _, m := range conv.messages {
		totalLen += len(m.Body)
	}
	last := conv.messages[len(conv.messages)-1]
	return domain.HistoryStats{
		Count:                len(conv.messages),
		LastMessageTimestamp: last.Timestamp,
		AverageBodyLength:    float64(totalLen) / float64(len(conv.messages)),
	}
}

// EvictOlderThan removes every conversation whose lastUpdatedAt is
// older than now - maxAge and returns the number removed. Safe to run
// while other operations proceed; intended for the periodic sweep.
func (s *Store) EvictOlderThan(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, conv := range s.conversations {
		if conv.lastUpdatedAt < cutoff {
			delete(s.conversations, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("evicted stale conversations", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// Conversations returns the number of tracked conversations.
func (s *Store) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// TotalMessages returns the number of buffered messages across all
// conversations.
func (s *Store) TotalMessages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, conv := range s.conversations {
		total += len(conv.messages)
	}
	return total
}

package orchestrator

import (
	"context"
	"time"

	"relaybot/internal/domain"
)

// The operations below are thin pass-throughs over the collaborators,
// exposed so callers (CLI, observers) reach them without touching the
// components directly.

// SendManual sends text directly through the transport, bypassing
// history-triggered generation.
func (o *Orchestrator) SendManual(ctx context.Context, chatID, text string) error {
	return o.transport.Send(ctx, chatID, text)
}

// History returns the last n messages of a conversation.
func (o *Orchestrator) History(chatID string, n int) []domain.Message {
	return o.store.Recent(chatID, n)
}

// ClearHistory removes a conversation's buffer.
func (o *Orchestrator) ClearHistory(chatID string) {
	o.store.Clear(chatID)
}

// SearchHistory finds messages by case-insensitive substring.
func (o *Orchestrator) SearchHistory(chatID, query string) []domain.Message {
	return o.store.Search(chatID, query)
}

// ExportHistory serializes one conversation's full state.
func (o *Orchestrator) ExportHistory(chatID string) ([]byte, error) {
	return o.store.Serialize(chatID)
}

// ImportHistory replaces one conversation's state from an export blob.
func (o *Orchestrator) ImportHistory(chatID string, blob []byte) error {
	return o.store.Deserialize(chatID, blob)
}

// EvictStale triggers an eviction sweep and returns the number of
// conversations removed.
func (o *Orchestrator) EvictStale(maxAge time.Duration) int {
	return o.store.EvictOlderThan(maxAge)
}

// RunEvictionLoop sweeps stale conversations on a fixed interval until
// ctx is cancelled. Runs independently of message processing.
func (o *Orchestrator) RunEvictionLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.EvictStale(maxAge)
		}
	}
}

// Status is the aggregate state snapshot.
type Status struct {
	TransportConnected   bool `json:"transportConnected"`
	GeneratorConfigValid bool `json:"generatorConfigValid"`
	ObserverCount        int  `json:"observerCount"`
	Busy                 bool `json:"busy"`
	TotalConversations   int  `json:"totalConversations"`
	TotalMessages        int  `json:"totalMessages"`
}

// Status reports the current aggregate state.
func (o *Orchestrator) Status() Status {
	observers := 0
	if o.broadcaster != nil {
		observers = o.broadcaster.ObserverCount()
	}
	return Status{
		TransportConnected:   o.transport.Connected(),
		GeneratorConfigValid: o.generator.ValidateConfiguration(),
		ObserverCount:        observers,
		Busy:                 o.busy.Load(),
		TotalConversations:   o.store.Conversations(),
		TotalMessages:        o.store.TotalMessages(),
	}
}

// ConnState returns the last transport state seen.
func (o *Orchestrator) ConnState() domain.ConnState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connState
}

// Shutdown disconnects the transport and closes the broadcast channel.
func (o *Orchestrator) Shutdown() error {
	o.logger.Info("orchestrator shutting down")
	err := o.transport.Disconnect()
	if o.broadcaster != nil {
		if cerr := o.broadcaster.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Package orchestrator wires transport message events to the history
// store, context builder, generator client, and event bus. Processing
// is single-flight: one inbound message at a time system-wide, guarded
// by a global busy flag. Messages arriving while busy are dropped,
// never queued.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"relaybot/internal/archive"
	"relaybot/internal/bus"
	"relaybot/internal/domain"
	"relaybot/internal/history"
	"relaybot/internal/metrics"
	"relaybot/internal/prompt"
)

// Orchestrator runs the message-processing pipeline.
type Orchestrator struct {
	transport   domain.Transport
	generator   domain.Generator
	store       *history.Store
	events      *bus.EventBus
	broadcaster *bus.Broadcaster // optional
	archive     *archive.Store   // optional
	logger      *slog.Logger

	replyDelay time.Duration
	windowSize int

	// busy serializes end-to-end processing: test-and-set at handler
	// entry, cleared in a deferred block. Held across the reply delay.
	busy atomic.Bool

	mu        sync.RWMutex
	connState domain.ConnState
}

// Config holds the orchestrator dependencies and tuning parameters.
type Config struct {
	Transport   domain.Transport
	Generator   domain.Generator
	Store       *history.Store
	Events      *bus.EventBus
	Broadcaster *bus.Broadcaster // optional: observer count in status
	Archive     *archive.Store   // optional: transcript audit log
	Logger      *slog.Logger
	ReplyDelay  time.Duration
	WindowSize  int
}

func New(cfg Config) *Orchestrator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = prompt.DefaultWindowSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	o := &Orchestrator{
		transport:   cfg.Transport,
		generator:   cfg.Generator,
		store:       cfg.Store,
		events:      cfg.Events,
		broadcaster: cfg.Broadcaster,
		archive:     cfg.Archive,
		logger:      cfg.Logger,
		replyDelay:  cfg.ReplyDelay,
		windowSize:  cfg.WindowSize,
		connState:   domain.StateDisconnected,
	}

	cfg.Transport.OnStatusChange(o.handleStatusChange)
	cfg.Transport.OnMessage(o.HandleInbound)
	return o
}

// HandleInbound is the transport message handler. While a message is
// in flight, further messages are dropped with an error event,
// never queued.
func (o *Orchestrator) HandleInbound(m domain.Message) {
	if !o.busy.CompareAndSwap(false, true) {
		o.logger.Warn("busy, dropping inbound message", "id", m.ID, "from", m.From)
		metrics.MessagesDropped.Inc()
		o.events.Emit(bus.Event{Type: bus.EventErrorOccurred, Data: map[string]any{
			"messageId": m.ID,
			"chatId":    m.To,
			"error":     "processor busy, message dropped",
		}})
		return
	}
	go o.process(context.Background(), m)
}

// process runs steps 2-9 of the pipeline for one accepted message.
// Exactly one attempt per message; any failure ends in silence toward
// the sender plus an error event for observers.
func (o *Orchestrator) process(ctx context.Context, m domain.Message) (outcome domain.ProcessingOutcome) {
	started := time.Now()
	defer o.busy.Store(false)
	defer func() {
		outcome.ElapsedMS = time.Since(started).Milliseconds()
		o.recordOutcome(ctx, m, outcome)
	}()

	o.events.Emit(bus.Event{Type: bus.EventMessageReceived, Data: m})
	metrics.MessagesReceived.Inc()

	chatID := m.To
	o.store.Append(chatID, m)
	o.archiveMessage(ctx, chatID, "inbound", m)

	window := o.store.ContextWindow(chatID, o.windowSize)
	turns := prompt.BuildDialogueTurns(window, chatID, o.windowSize)

	genStart := time.Now()
	reply, err := o.generator.Generate(ctx, m.Body, turns)
	metrics.GenerationLatency.Observe(time.Since(genStart).Seconds())
	if err != nil {
		o.failProcessing(m, "generation failed", err)
		return domain.ProcessingOutcome{ErrorDetail: err.Error()}
	}

	reply.Topics = prompt.ExtractTopics(window, prompt.DefaultTopicWindow, prompt.DefaultMaxTopics)
	o.events.Emit(bus.Event{Type: bus.EventAIResponseGenerated, Data: reply})

	// Models human response latency. The busy flag stays held, so
	// messages arriving during the delay are dropped, not queued.
	if o.replyDelay > 0 {
		select {
		case <-time.After(o.replyDelay):
		case <-ctx.Done():
			o.failProcessing(m, "cancelled during reply delay", ctx.Err())
			return domain.ProcessingOutcome{ErrorDetail: ctx.Err().Error()}
		}
	}

	if err := o.transport.Send(ctx, m.From, reply.Text); err != nil {
		o.failProcessing(m, "transport send failed", err)
		return domain.ProcessingOutcome{ErrorDetail: err.Error()}
	}

	botMsg := domain.NewBotMessage(chatID, m.From, reply.Text)
	o.store.Append(chatID, botMsg)
	o.archiveMessage(ctx, chatID, "outbound", botMsg)
	o.events.Emit(bus.Event{Type: bus.EventMessageSent, Data: botMsg})
	metrics.MessagesSent.Inc()

	o.logger.Info("message processed",
		"chat", chatID,
		"elapsed", time.Since(started),
		"confidence", reply.Confidence,
	)
	return domain.ProcessingOutcome{Success: true, ReplyText: reply.Text}
}

func (o *Orchestrator) failProcessing(m domain.Message, detail string, err error) {
	o.logger.Error(detail, "id", m.ID, "chat", m.To, "err", err)
	metrics.ProcessingErrors.Inc()
	o.events.Emit(bus.Event{Type: bus.EventErrorOccurred, Data: map[string]any{
		"messageId": m.ID,
		"chatId":    m.To,
		"error":     detail + ": " + err.Error(),
	}})
}

func (o *Orchestrator) handleStatusChange(state domain.ConnState) {
	o.mu.Lock()
	o.connState = state
	o.mu.Unlock()

	o.logger.Info("transport status changed", "state", state)
	o.events.Emit(bus.Event{Type: bus.EventConnectionStatus, Data: map[string]any{
		"state": string(state),
	}})
}

func (o *Orchestrator) archiveMessage(ctx context.Context, chatID, direction string, m domain.Message) {
	if o.archive == nil {
		return
	}
	if err := o.archive.RecordMessage(ctx, chatID, direction, m); err != nil {
		o.logger.Warn("archive write failed", "chat", chatID, "err", err)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, m domain.Message, outcome domain.ProcessingOutcome) {
	if o.archive == nil {
		return
	}
	if err := o.archive.RecordOutcome(ctx, m.ID, m.To, outcome); err != nil {
		o.logger.Warn("archive outcome write failed", "chat", m.To, "err", err)
	}
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relaybot/internal/metrics"
)

const observerWriteTimeout = 5 * time.Second

// Broadcaster fans every bus event out to attached WebSocket
// observers. A slow or dead observer only loses its own delivery:
// write errors are logged per-observer and never stall the rest, and
// nothing here ever blocks the emitting side beyond the write timeout.
type Broadcaster struct {
	addr   string
	path   string
	bus    *EventBus
	logger *slog.Logger
	server *http.Server

	mu        sync.RWMutex
	observers map[string]*observer
	nextID    int
	closed    bool
}

type observer struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes to the conn
}

type BroadcasterConfig struct {
	Host   string
	Port   int
	Path   string // WebSocket endpoint path (default: /events)
	Logger *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewBroadcaster(cfg BroadcasterConfig, eventBus *EventBus) *Broadcaster {
	if cfg.Path == "" {
		cfg.Path = "/events"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &Broadcaster{
		addr:      fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		path:      cfg.Path,
		bus:       eventBus,
		logger:    cfg.Logger,
		observers: make(map[string]*observer),
	}
	// Every bus event goes out on the wire.
	eventBus.On("*", b.fanOut)
	return b
}

// Start runs the observer HTTP server until ctx is cancelled. The
// metrics endpoint shares the mux.
func (b *Broadcaster) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(b.path, b.handleUpgrade)
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	b.server = &http.Server{
		Addr:              b.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.logger.Info("observer broadcast server starting", "addr", b.addr, "path", b.path)

	errCh := make(chan error, 1)
	go func() {
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return b.Close()
	case err := <-errCh:
		return err
	}
}

// Close disconnects all observers and stops the server.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	b.closed = true
	for id, obs := range b.observers {
		obs.conn.Close()
		delete(b.observers, id)
	}
	b.mu.Unlock()
	metrics.ObserversConnected.Set(0)

	if b.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.server.Shutdown(shutdownCtx)
}

// ObserverCount returns the number of currently attached observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

func (b *Broadcaster) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("observer upgrade failed", "err", err)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.nextID++
	id := fmt.Sprintf("observer-%d", b.nextID)
	obs := &observer{conn: conn}
	b.observers[id] = obs
	count := len(b.observers)
	b.mu.Unlock()
	metrics.ObserversConnected.Set(int64(count))

	b.logger.Info("observer connected", "id", id, "remote", conn.RemoteAddr())

	// Greeting so a fresh observer knows the channel is live.
	b.writeTo(id, obs, Event{
		Type:      EventConnection,
		Data:      map[string]any{"observerId": id},
		Timestamp: time.Now(),
	})

	// Observers are write-only; the read loop only detects disconnect.
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.observers, id)
			count := len(b.observers)
			b.mu.Unlock()
			metrics.ObserversConnected.Set(int64(count))
			conn.Close()
			b.logger.Info("observer disconnected", "id", id)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// fanOut serializes the event once and writes it to every observer.
func (b *Broadcaster) fanOut(event Event) {
	b.mu.RLock()
	targets := make(map[string]*observer, len(b.observers))
	for id, obs := range b.observers {
		targets[id] = obs
	}
	b.mu.RUnlock()

	for id, obs := range targets {
		b.writeTo(id, obs, event)
	}
}

func (b *Broadcaster) writeTo(id string, obs *observer, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("event marshal failed", "type", event.Type, "err", err)
		return
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	_ = obs.conn.SetWriteDeadline(time.Now().Add(observerWriteTimeout))
	if err := obs.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Isolated per observer: log and move on, never propagate.
		b.logger.Warn("observer write failed", "id", id, "type", event.Type, "err", err)
	}
}

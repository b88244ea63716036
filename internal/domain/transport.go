package domain

import "context"

// ConnState is the transport connection lifecycle. Only Ready permits
// outbound sends.
type ConnState string

const (
	StateDisconnected   ConnState = "disconnected"
	StateConnecting     ConnState = "connecting"
	StateConnected      ConnState = "connected"
	StateAuthenticating ConnState = "authenticating"
	StateReady          ConnState = "ready"
)

// Transport is the messaging collaborator the orchestrator talks to.
// Implementations must deliver inbound messages in arrival order and
// at most once per physical message; the core does no deduplication.
type Transport interface {
	Name() string

	// OnMessage registers the inbound handler. Must be called before
	// Start; the handler is invoked once per accepted message.
	OnMessage(handler func(Message))

	// OnStatusChange registers a connection-state observer.
	OnStatusChange(handler func(ConnState))

	// Start connects and blocks until ctx is cancelled or the
	// transport fails.
	Start(ctx context.Context) error

	// Send delivers text to the given conversation. Returns a
	// TransportUnavailable error when the connection is not Ready.
	Send(ctx context.Context, chatID string, text string) error

	// Connected reports whether the transport is currently Ready.
	Connected() bool

	Disconnect() error
}

// Generator abstracts a text-generation backend. Implementations are
// selected at construction time and must be swappable without touching
// the orchestrator.
type Generator interface {
	Name() string

	// Generate produces a reply for userText grounded on the given
	// dialogue turns. The turns are already windowed and role-tagged;
	// the client must not re-window them. Failures are returned as
	// GenerationError values.
	Generate(ctx context.Context, userText string, turns []DialogueTurn) (*GeneratedReply, error)

	// ValidateConfiguration reports whether the required credential
	// and model fields are present. Startup-time only.
	ValidateConfiguration() bool

	// TestConnectivity is a lightweight reachability probe used at
	// startup, never on the hot path.
	TestConnectivity(ctx context.Context) bool
}

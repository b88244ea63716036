package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaybot/internal/domain"
)

const (
	consoleChatID         = "console"
	consoleConversationID = "console@relaybot"
)

// Console implements domain.Transport as an interactive terminal REPL.
// Useful for local runs without a Telegram token.
type Console struct {
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	onMsg    func(domain.Message)
	onStatus func(domain.ConnState)

	mu    sync.RWMutex
	state domain.ConnState
	seq   int

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type ConsoleOptions struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewConsole(opts ConsoleOptions) *Console {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Console{
		logger: opts.Logger,
		in:     opts.In,
		out:    opts.Out,
		state:  domain.StateDisconnected,
	}
}

func (c *Console) Name() string { return "console" }

func (c *Console) OnMessage(h func(domain.Message)) { c.onMsg = h }

func (c *Console) OnStatusChange(h func(domain.ConnState)) { c.onStatus = h }

func (c *Console) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == domain.StateReady
}

func (c *Console) Disconnect() error { return nil }

func (c *Console) setState(s domain.ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// Start runs the REPL until EOF, /quit, or ctx cancellation. The
// terminal needs no handshake, so the state goes straight to Ready.
func (c *Console) Start(ctx context.Context) error {
	c.setState(domain.StateConnecting)
	c.setState(domain.StateReady)
	defer c.setState(domain.StateDisconnected)

	_, _ = fmt.Fprintln(c.out, "relaybot console. Type a message and press Enter. /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("console user requested quit")
			return nil
		}

		c.startThinking()
		if c.onMsg != nil {
			c.onMsg(c.newMessage(line))
		}
	}
}

func (c *Console) newMessage(body string) domain.Message {
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.mu.Unlock()
	return domain.Message{
		ID:        "console-" + strconv.Itoa(id),
		From:      consoleChatID,
		To:        consoleConversationID,
		Timestamp: time.Now().UnixMilli(),
		Kind:      domain.KindText,
		Body:      body,
	}
}

func (c *Console) Send(_ context.Context, _ string, text string) error {
	if !c.Connected() {
		return domain.Errf(domain.KindTransportUnavailable, "console.send",
			"connection not ready, message not sent")
	}
	c.stopThinking()
	_, _ = fmt.Fprint(c.out, "\r\033[K") // clear spinner line
	_, _ = fmt.Fprintln(c.out, "--- relaybot ---")
	_, _ = fmt.Fprintln(c.out, text)
	_, _ = fmt.Fprintln(c.out, "----------------")
	_, _ = fmt.Fprint(c.out, "You> ")
	return nil
}

func (c *Console) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func(stop chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop)
}

func (c *Console) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

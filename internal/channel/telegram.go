// Package channel holds the transport adapters. Each adapter turns a
// concrete messaging surface into the domain.Transport contract the
// orchestrator consumes.
package channel

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaybot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramPollTimeout    = 30 // seconds, long-poll
)

// Telegram implements domain.Transport over the Bot API long-poll.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all
	parseMode string
	logger    *slog.Logger

	bot      *tgbotapi.BotAPI
	onMsg    func(domain.Message)
	onStatus func(domain.ConnState)

	mu    sync.RWMutex
	state domain.ConnState
}

type TelegramOptions struct {
	Token     string
	AllowFrom []string // user IDs as strings
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(opts TelegramOptions) *Telegram {
	var allowed []int64
	for _, s := range opts.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if opts.ParseMode == "" {
		opts.ParseMode = "Markdown"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Telegram{
		token:     opts.Token,
		allowFrom: allowed,
		parseMode: opts.ParseMode,
		logger:    opts.Logger,
		state:     domain.StateDisconnected,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) OnMessage(h func(domain.Message)) { t.onMsg = h }

func (t *Telegram) OnStatusChange(h func(domain.ConnState)) { t.onStatus = h }

func (t *Telegram) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state == domain.StateReady
}

func (t *Telegram) setState(s domain.ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	if t.onStatus != nil {
		t.onStatus(s)
	}
}

// Start authenticates and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	t.setState(domain.StateConnecting)

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		t.setState(domain.StateDisconnected)
		return domain.WrapErr(domain.KindTransportUnavailable, "telegram.start", err)
	}
	t.bot = bot
	t.setState(domain.StateConnected)

	// NewBotAPI already ran getMe, but verify the session explicitly
	// so a revoked token fails here rather than on the first poll.
	t.setState(domain.StateAuthenticating)
	self, err := bot.GetMe()
	if err != nil {
		t.setState(domain.StateDisconnected)
		return domain.WrapErr(domain.KindTransportUnavailable, "telegram.authenticate", err)
	}
	t.logger.Info("telegram bot authenticated", "username", self.UserName, "id", self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := bot.GetUpdatesChan(u)

	t.setState(domain.StateReady)
	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram transport stopping")
			bot.StopReceivingUpdates()
			t.setState(domain.StateDisconnected)
			return nil
		case update, ok := <-updates:
			if !ok {
				t.setState(domain.StateDisconnected)
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Disconnect is a no-op: the poll loop stops when Start's context is
// cancelled, and StopReceivingUpdates panics when called twice.
func (t *Telegram) Disconnect() error { return nil }

// Send delivers text to a Telegram chat. Fails fast unless the
// connection is Ready.
func (t *Telegram) Send(_ context.Context, chatID string, text string) error {
	if !t.Connected() {
		return domain.Errf(domain.KindTransportUnavailable, "telegram.send",
			"connection not ready, message not sent")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return domain.WrapErr(domain.KindValidation, "telegram.send", err)
	}
	t.sendMessage(id, text)
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("dropping update from unauthorized user",
			"user_id", msg.From.ID,
			"username", msg.From.UserName,
		)
		return
	}

	kind, body := classifyTelegramMessage(msg)
	if body == "" && kind == domain.KindText {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	m := domain.Message{
		ID:         strconv.Itoa(msg.MessageID),
		From:       chatID,
		To:         chatID + "@" + t.bot.Self.UserName,
		Timestamp:  time.Unix(int64(msg.Date), 0).UnixMilli(),
		Kind:       kind,
		Body:       body,
		SenderName: msg.From.FirstName,
	}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		m.IsGroup = true
		m.GroupID = chatID
	}

	t.logger.Info("telegram message received",
		"chat_id", chatID,
		"kind", kind,
		"body_len", len(body),
	)

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	if t.onMsg != nil {
		t.onMsg(m)
	}
}

// classifyTelegramMessage maps non-text payloads to a message kind,
// carrying the caption as body where one exists.
func classifyTelegramMessage(msg *tgbotapi.Message) (domain.MessageKind, string) {
	switch {
	case msg.Photo != nil:
		return domain.KindImage, msg.Caption
	case msg.Video != nil:
		return domain.KindVideo, msg.Caption
	case msg.Audio != nil || msg.Voice != nil:
		return domain.KindAudio, msg.Caption
	case msg.Document != nil:
		return domain.KindDocument, msg.Caption
	case msg.Location != nil:
		return domain.KindLocation, ""
	case msg.Contact != nil:
		return domain.KindContact, msg.Contact.FirstName
	default:
		return domain.KindText, strings.TrimSpace(msg.Text)
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendMessage splits text into chunks under the Telegram 4096-char
// limit, cutting at newlines where possible.
func (t *Telegram) sendMessage(chatID int64, text string) {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends one chunk: Markdown first, plain text on parse
// error, backoff on rate limits and transient failures.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			plain := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plain); err2 == nil {
				return
			}
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries",
			"err", err, "attempts", telegramMaxSendRetries+1,
		)
	}
}

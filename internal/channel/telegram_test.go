package channel

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaybot/internal/domain"
)

func TestTelegramAllowList(t *testing.T) {
	tg := NewTelegram(TelegramOptions{
		Token:     "x",
		AllowFrom: []string{"42", " 7 ", "not-a-number"},
		Logger:    discardLogger(),
	})
	if !tg.isAllowed(42) || !tg.isAllowed(7) {
		t.Error("listed users rejected")
	}
	if tg.isAllowed(99) {
		t.Error("unlisted user allowed")
	}

	open := NewTelegram(TelegramOptions{Token: "x", Logger: discardLogger()})
	if !open.isAllowed(99) {
		t.Error("empty allow list must admit everyone")
	}
}

func TestTelegramSendRequiresReady(t *testing.T) {
	tg := NewTelegram(TelegramOptions{Token: "x", Logger: discardLogger()})
	err := tg.Send(context.Background(), "123", "hi")
	if !domain.IsKind(err, domain.KindTransportUnavailable) {
		t.Errorf("send while disconnected = %v, want transport unavailable", err)
	}
}

func TestClassifyTelegramMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      *tgbotapi.Message
		wantKind domain.MessageKind
		wantBody string
	}{
		{
			name:     "plain text",
			msg:      &tgbotapi.Message{Text: "  hello  "},
			wantKind: domain.KindText,
			wantBody: "hello",
		},
		{
			name:     "photo with caption",
			msg:      &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{}}, Caption: "sunset"},
			wantKind: domain.KindImage,
			wantBody: "sunset",
		},
		{
			name:     "video",
			msg:      &tgbotapi.Message{Video: &tgbotapi.Video{}, Caption: "clip"},
			wantKind: domain.KindVideo,
			wantBody: "clip",
		},
		{
			name:     "voice note",
			msg:      &tgbotapi.Message{Voice: &tgbotapi.Voice{}},
			wantKind: domain.KindAudio,
			wantBody: "",
		},
		{
			name:     "document",
			msg:      &tgbotapi.Message{Document: &tgbotapi.Document{}, Caption: "report.pdf"},
			wantKind: domain.KindDocument,
			wantBody: "report.pdf",
		},
		{
			name:     "location",
			msg:      &tgbotapi.Message{Location: &tgbotapi.Location{}},
			wantKind: domain.KindLocation,
			wantBody: "",
		},
		{
			name:     "contact",
			msg:      &tgbotapi.Message{Contact: &tgbotapi.Contact{FirstName: "Sam"}},
			wantKind: domain.KindContact,
			wantBody: "Sam",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, body := classifyTelegramMessage(tt.msg)
			if kind != tt.wantKind || body != tt.wantBody {
				t.Errorf("classify = (%v, %q), want (%v, %q)", kind, body, tt.wantKind, tt.wantBody)
			}
		})
	}
}

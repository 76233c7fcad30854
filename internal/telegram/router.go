package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/texts"
)

// Engagement is the subset of engagement.Service the router drives.
type Engagement interface {
	Subscribe(ctx context.Context, chatID int64) error
	Unsubscribe(ctx context.Context, chatID int64) error
	Acknowledge(ctx context.Context, chatID int64) error
	Status(ctx context.Context, chatID int64) error
}

// Replier sends the router's own replies (help, unknown command).
type Replier interface {
	SendMessage(chatID int64, text string) error
	SendWithKeyboard(chatID int64, text string) error
}

// Router wires Telegram updates to engagement transitions.
type Router struct {
	svc   Engagement
	out   Replier
	log   *zap.Logger
	texts texts.Texts
}

// NewRouter creates a new Telegram router.
func NewRouter(svc Engagement, out Replier, log *zap.Logger, tx texts.Texts) *Router {
	return &Router{svc: svc, out: out, log: log, texts: tx}
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	// Only private chats: the chat id doubles as the subscriber id.
	if !msg.Chat.IsPrivate() {
		return
	}
	chatID := msg.Chat.ID

	var err error
	if msg.IsCommand() {
		switch cmd := msg.Command(); cmd {
		case "start":
			err = r.svc.Subscribe(ctx, chatID)
		case "stop":
			err = r.svc.Unsubscribe(ctx, chatID)
		case "status":
			err = r.svc.Status(ctx, chatID)
		case "help":
			err = r.out.SendWithKeyboard(chatID, r.texts.Help)
		default:
			err = r.out.SendMessage(chatID, r.texts.UnknownCommand)
		}
		if err != nil {
			r.log.Error("command failed", zap.String("command", msg.Command()), zap.Int64("chatID", chatID), zap.Error(err))
		}
		return
	}

	// Stickers, photos and the like carry no text and are not answers.
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	if err = r.svc.Acknowledge(ctx, chatID); err != nil {
		r.log.Error("answer intake failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

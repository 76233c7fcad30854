package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Client sends messages through the Bot API. It satisfies engagement.Sender.
type Client struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

// NewClient connects to the Bot API. Every request, including long polls,
// is bounded by timeout.
func NewClient(token string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	return newClient(token, tgbotapi.APIEndpoint, timeout, log)
}

func newClient(token, endpoint string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	return &Client{bot: bot, log: log}, nil
}

// Username returns the bot's @name.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// Updates starts long polling. pollTimeout must be shorter than the client timeout.
func (c *Client) Updates(pollTimeout time.Duration) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(pollTimeout.Seconds())
	return c.bot.GetUpdatesChan(u)
}

// StopUpdates ends long polling.
func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

// SendMessage sends a plain text message to the given chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	_, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendMarkdown sends text with Markdown formatting. Prompts are free text, so
// if Telegram cannot parse the markup the message is resent as plain text.
func (c *Client) SendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := c.bot.Send(msg)
	if err == nil || !isParseError(err) {
		return err
	}
	c.log.Warn("markdown rejected, sending plain text", zap.Int64("chatID", chatID), zap.Error(err))
	return c.SendMessage(chatID, text)
}

// SendWithKeyboard sends text with the main reply keyboard attached.
func (c *Client) SendWithKeyboard(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := c.bot.Send(msg)
	return err
}

func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "can't parse entities")
}

// mainMenuKeyboard is the persistent reply keyboard.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/help"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/stop"),
		),
	)
}

// Package notify sends run summaries over email, Telegram, and X.
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// photoCaptionLimit is Telegram's hard cap on photo captions.
const photoCaptionLimit = 1024

// telegramAPI is the slice of the bot API we use, extracted so tests
// can fake the wire.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts run summaries to a chat.
type TelegramSender struct {
	bot    telegramAPI
	chatID int64
	logger *logrus.Logger
}

// NewTelegramSender authenticates the bot token.
func NewTelegramSender(token string, chatID int64, logger *logrus.Logger) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth failed: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID, logger: logger}, nil
}

// SendMessage sends text with Markdown formatting, retrying once as
// plain text when Telegram rejects the markup.
func (t *TelegramSender) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.WithError(err).Warn("Markdown send rejected, retrying as plain text")
		plain := tgbotapi.NewMessage(t.chatID, stripMarkdown(text))
		if _, err := t.bot.Send(plain); err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
	}
	return nil
}

// SendPhoto sends an image with a caption, truncated to Telegram's
// caption limit.
func (t *TelegramSender) SendPhoto(path, caption string) error {
	if len(caption) > photoCaptionLimit {
		caption = caption[:photoCaptionLimit-3] + "..."
	}
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram photo send failed: %w", err)
	}
	return nil
}

// stripMarkdown removes the formatting characters that commonly break
// Telegram's Markdown parser.
func stripMarkdown(s string) string {
	return strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
}

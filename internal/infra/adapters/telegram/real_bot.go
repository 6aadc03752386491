package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*BotSender)(nil)

// Sender is the part of *tgbotapi.BotAPI used for outbound messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotSender delivers HTML messages through the Bot API. It never polls for
// updates; the bot itself is operated elsewhere.
type BotSender struct {
	api Sender
	log *zerolog.Logger
}

// NewBotSender authenticates against the Bot API with token (getMe).
func NewBotSender(token string, logger *zerolog.Logger) (*BotSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("bot token is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bot", api.Self.UserName).Msg("telegram bot sender ready")
	return NewBotSenderWith(api, logger), nil
}

func NewBotSenderWith(api Sender, logger *zerolog.Logger) *BotSender {
	return &BotSender{api: api, log: logger}
}

func (b *BotSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.SendButtons(ctx, chatID, text, nil)
}

// SendButtons sends a message with inline buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else btn.Text is used as callback data
func (b *BotSender) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb := keyboard(rows); len(kb) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kb...)
	}

	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		return err
	}
	return nil
}

func keyboard(rows [][]adapter.InlineButton) [][]tgbotapi.InlineKeyboardButton {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		out = append(out, r)
	}
	return out
}

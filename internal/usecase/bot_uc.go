package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/infra/i18n"
	"vpn-checkout/internal/infra/metrics"
	"vpn-checkout/internal/infra/worker"
)

// Compile-time checks
var (
	_ BotUseCase       = (*botUC)(nil)
	_ PurchaseNotifier = (*botUC)(nil)
)

type BotAuthRequest struct {
	TelegramID     string
	SubscriptionID string
	PlanName       string
}

type BotUseCase interface {
	// DeepLink builds https://t.me/<bot>?start=sub_<id> or auth_<telegramId>.
	DeepLink(telegramID, subscriptionID string) string
	// Authorize returns the deep link and, best effort, messages the user.
	Authorize(ctx context.Context, req BotAuthRequest) (string, error)
	NotifyPurchaseAsync(ident model.Identity, sub model.Subscription)
}

type botUC struct {
	bot      adapter.TelegramBotAdapter // nil when no token is configured
	username string
	pool     *worker.Pool
	msgs     *i18n.Translator
	log      *zerolog.Logger
}

func NewBotUseCase(bot adapter.TelegramBotAdapter, username string, pool *worker.Pool, msgs *i18n.Translator, logger *zerolog.Logger) *botUC {
	l := logger.With().Str("component", "BotUC").Logger()
	return &botUC{bot: bot, username: username, pool: pool, msgs: msgs, log: &l}
}

func (uc *botUC) DeepLink(telegramID, subscriptionID string) string {
	start := "auth_" + telegramID
	if subscriptionID != "" {
		start = "sub_" + subscriptionID
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", uc.username, url.QueryEscape(start))
}

func (uc *botUC) Authorize(ctx context.Context, req BotAuthRequest) (string, error) {
	if strings.TrimSpace(req.TelegramID) == "" {
		return "", fmt.Errorf("%w: telegramId is required", domain.ErrInvalidArgument)
	}
	if uc.bot == nil {
		return "", domain.ErrNotConfigured
	}
	link := uc.DeepLink(req.TelegramID, req.SubscriptionID)

	chatID, err := strconv.ParseInt(req.TelegramID, 10, 64)
	if err != nil {
		metrics.IncBotMessage("auth", "skipped")
		return link, nil
	}
	text := uc.msgs.T("bot.welcome")
	if req.PlanName != "" {
		text = uc.msgs.T("bot.purchase", req.PlanName)
	}
	uc.send(ctx, "auth", chatID, text, link)
	return link, nil
}

func (uc *botUC) send(ctx context.Context, kind string, chatID int64, text, link string) {
	rows := [][]adapter.InlineButton{{{Text: uc.msgs.T("bot.open_button"), URL: link}}}
	if err := uc.bot.SendButtons(ctx, chatID, text, rows); err != nil {
		metrics.IncBotMessage(kind, "error")
		uc.log.Warn().Err(err).Str("kind", kind).Msg("bot message not delivered")
		return
	}
	metrics.IncBotMessage(kind, "sent")
}

// NotifyPurchaseAsync queues a congratulation message; temporary ids have no chat.
func (uc *botUC) NotifyPurchaseAsync(ident model.Identity, sub model.Subscription) {
	chatID, ok := ident.ChatID()
	if !ok || uc.bot == nil {
		metrics.IncBotMessage("purchase", "skipped")
		return
	}
	link := uc.DeepLink(ident.UserID, strconv.FormatInt(sub.ID, 10))
	if sub.ID == 0 {
		link = uc.DeepLink(ident.UserID, "")
	}
	text := uc.msgs.T("bot.purchase", sub.PlanName)

	task := func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		uc.send(sendCtx, "purchase", chatID, text, link)
		return nil
	}
	if uc.pool == nil {
		go func() { _ = task(context.Background()) }()
		return
	}
	if err := uc.pool.Submit(task); err != nil {
		metrics.IncBotMessage("purchase", "dropped")
		uc.log.Warn().Err(err).Msg("purchase notification dropped")
	}
}

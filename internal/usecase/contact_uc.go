package usecase

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/domain/ports/repository"
	"vpn-checkout/internal/infra/i18n"
	"vpn-checkout/internal/infra/metrics"
)

// Compile-time check
var _ ContactUseCase = (*contactUC)(nil)

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Plan    string `json:"plan"`
}

type ContactUseCase interface {
	// Submit relays a site contact form to the admin chat. clientKey scopes rate limiting.
	Submit(ctx context.Context, clientKey string, req ContactRequest) error
}

type ContactLimits struct {
	Limit  int
	Window time.Duration
}

type contactUC struct {
	bot     adapter.TelegramBotAdapter
	chatID  int64
	limiter repository.RateLimiter
	limits  ContactLimits
	msgs    *i18n.Translator
	now     func() time.Time
	log     *zerolog.Logger
}

func NewContactUseCase(bot adapter.TelegramBotAdapter, chatID int64, limiter repository.RateLimiter, limits ContactLimits, msgs *i18n.Translator, logger *zerolog.Logger) *contactUC {
	l := logger.With().Str("component", "ContactUC").Logger()
	return &contactUC{bot: bot, chatID: chatID, limiter: limiter, limits: limits, msgs: msgs, now: time.Now, log: &l}
}

func (uc *contactUC) Submit(ctx context.Context, clientKey string, req ContactRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		metrics.IncContactMessage("invalid")
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, uc.msgs.T("contact.required"))
	}
	if uc.bot == nil || uc.chatID == 0 {
		metrics.IncContactMessage("not_configured")
		return domain.ErrNotConfigured
	}

	if uc.limiter != nil && uc.limits.Limit > 0 {
		ok, err := uc.limiter.Allow(ctx, "rate_limit:contact:"+clientKey, uc.limits.Limit, uc.limits.Window)
		switch {
		case err != nil:
			// fail open while redis is unavailable
			uc.log.Warn().Err(err).Msg("contact rate limiter unavailable")
		case !ok:
			metrics.IncRateLimitTriggered("contact")
			metrics.IncContactMessage("rate_limited")
			return domain.ErrRateLimited
		}
	}

	if err := uc.bot.SendMessage(ctx, uc.chatID, uc.format(req)); err != nil {
		metrics.IncContactMessage("error")
		uc.log.Error().Err(err).Msg("contact relay failed")
		return err
	}
	metrics.IncContactMessage("sent")
	return nil
}

func (uc *contactUC) format(req ContactRequest) string {
	orDefault := func(v, key string) string {
		if v = strings.TrimSpace(v); v == "" {
			return uc.msgs.T(key)
		}
		return html.EscapeString(v)
	}
	return uc.msgs.T("contact.template",
		html.EscapeString(req.Name),
		html.EscapeString(req.Phone),
		orDefault(req.Email, "contact.not_set"),
		orDefault(req.Plan, "contact.no_plan"),
		orDefault(req.Message, "contact.not_set"),
		uc.now().Format("02.01.2006, 15:04:05"),
	)
}

package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/infra/logging"
	"vpn-checkout/internal/infra/telegram"
)

// Compile-time check
var _ IdentityUseCase = (*identityUC)(nil)

type IdentityUseCase interface {
	// Authenticate verifies Mini App initData and returns the Telegram user.
	Authenticate(ctx context.Context, initData string) (model.Identity, error)
	// Anonymous accepts a previously issued temporary id or mints a new one.
	Anonymous(tempID string) (model.Identity, error)
}

type identityUC struct {
	botToken       string
	allowAnonymous bool
	dev            bool
	now            func() time.Time
	log            *zerolog.Logger
}

func NewIdentityUseCase(botToken string, allowAnonymous, dev bool, logger *zerolog.Logger) *identityUC {
	l := logger.With().Str("component", "IdentityUC").Logger()
	return &identityUC{botToken: botToken, allowAnonymous: allowAnonymous, dev: dev, now: time.Now, log: &l}
}

func (uc *identityUC) Authenticate(ctx context.Context, initData string) (model.Identity, error) {
	if initData == "" {
		return model.Identity{}, domain.ErrInvalidArgument
	}
	if err := telegram.ValidateInitData(uc.botToken, initData); err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Msg("init data rejected")
		return model.Identity{}, err
	}
	ident, err := telegram.ParseUser(initData)
	if err != nil {
		return model.Identity{}, err
	}
	logging.With(ctx, uc.log).Info().Str("telegram_id", logging.Redact(ident.UserID, uc.dev)).Msg("telegram user authenticated")
	return ident, nil
}

func (uc *identityUC) Anonymous(tempID string) (model.Identity, error) {
	if !uc.allowAnonymous {
		return model.Identity{}, domain.ErrUnauthorized
	}
	if model.IsTemporaryID(tempID) {
		return model.Identity{UserID: tempID, Temporary: true}, nil
	}
	return model.NewTemporaryIdentity(uc.now()), nil
}

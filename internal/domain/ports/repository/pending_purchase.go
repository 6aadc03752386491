package repository

import (
	"context"

	"vpn-checkout/internal/domain/model"
)

// PendingPurchaseStore keeps the {order, plan, user} snapshot that lets a
// checkout resume after a full page reload. Load returns domain.ErrNotFound
// when nothing is stored.
type PendingPurchaseStore interface {
	Save(ctx context.Context, p *model.PendingPurchase) error
	Load(ctx context.Context, userID string) (*model.PendingPurchase, error)
	Clear(ctx context.Context, userID string) error
}

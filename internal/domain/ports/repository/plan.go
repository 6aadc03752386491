package repository

import (
	"context"

	"vpn-checkout/internal/domain/model"
)

// PlanCache holds the catalog listing between upstream fetches.
// Get returns domain.ErrNotFound on a miss.
type PlanCache interface {
	Get(ctx context.Context) ([]model.Plan, error)
	Set(ctx context.Context, plans []model.Plan) error
}

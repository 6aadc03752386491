package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/domain/ports/repository"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

type CatalogUseCase interface {
	// List returns the plan catalog, served from cache when possible.
	List(ctx context.Context) domain.Result[[]model.Plan]
	// Find resolves a plan id; unknown ids fail with INVALID_PLAN.
	Find(ctx context.Context, planID string) domain.Result[model.Plan]
	// Refresh fetches the catalog from upstream and rewrites the cache.
	Refresh(ctx context.Context) (int, error)
}

type catalogUC struct {
	plans adapter.PlanCatalog
	cache repository.PlanCache
	log   *zerolog.Logger
}

// NewCatalogUseCase constructs the catalog; cache may be nil.
func NewCatalogUseCase(plans adapter.PlanCatalog, cache repository.PlanCache, logger *zerolog.Logger) *catalogUC {
	l := logger.With().Str("component", "CatalogUC").Logger()
	return &catalogUC{plans: plans, cache: cache, log: &l}
}

func (uc *catalogUC) List(ctx context.Context) domain.Result[[]model.Plan] {
	if uc.cache != nil {
		plans, err := uc.cache.Get(ctx)
		if err == nil && len(plans) > 0 {
			return domain.Ok(plans)
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Msg("plan cache read failed")
		}
	}
	return uc.fetch(ctx)
}

func (uc *catalogUC) fetch(ctx context.Context) domain.Result[[]model.Plan] {
	res := uc.plans.ListPlans(ctx)
	if !res.OK {
		return res
	}
	if uc.cache != nil && len(res.Data) > 0 {
		if err := uc.cache.Set(ctx, res.Data); err != nil {
			uc.log.Warn().Err(err).Msg("plan cache write failed")
		}
	}
	return res
}

func (uc *catalogUC) Find(ctx context.Context, planID string) domain.Result[model.Plan] {
	res := uc.List(ctx)
	if !res.OK {
		return domain.Result[model.Plan]{Code: res.Code, Message: res.Message, Status: res.Status}
	}
	p, err := model.FindPlan(res.Data, planID)
	if err != nil {
		return domain.Fail[model.Plan](domain.CodeInvalidPlan, "plan "+planID+" not found", 0)
	}
	return domain.Ok(p)
}

func (uc *catalogUC) Refresh(ctx context.Context) (int, error) {
	res := uc.fetch(ctx)
	if !res.OK {
		return 0, res.Err()
	}
	return len(res.Data), nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/repository"
	"vpn-checkout/internal/infra/metrics"
)

var _ repository.PlanCache = (*PlanCache)(nil)

const planCacheKey = "plans:all"

type PlanCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewPlanCache(client RedisClient, ttl time.Duration) *PlanCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanCache{client: client, ttl: ttl}
}

func (c *PlanCache) Get(ctx context.Context) ([]model.Plan, error) {
	data, err := c.client.Get(ctx, planCacheKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCacheRequest("plans", "miss")
		} else {
			metrics.IncCacheRequest("plans", "error")
		}
		return nil, err
	}
	var plans []model.Plan
	if err := json.Unmarshal([]byte(data), &plans); err != nil {
		metrics.IncCacheRequest("plans", "error")
		return nil, err
	}
	metrics.IncCacheRequest("plans", "hit")
	return plans, nil
}

func (c *PlanCache) Set(ctx context.Context, plans []model.Plan) error {
	data, err := json.Marshal(plans)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, planCacheKey, data, c.ttl)
}

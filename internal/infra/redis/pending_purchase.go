package redis

import (
	"context"
	"encoding/json"
	"time"

	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/repository"
)

var _ repository.PendingPurchaseStore = (*PendingPurchaseRepo)(nil)

// PendingPurchaseRepo keeps one snapshot per user so a checkout survives a reload.
type PendingPurchaseRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewPendingPurchaseRepo(client RedisClient, ttl time.Duration) *PendingPurchaseRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PendingPurchaseRepo{client: client, ttl: ttl}
}

func pendingKey(userID string) string { return "pending_purchase:" + userID }

func (r *PendingPurchaseRepo) Save(ctx context.Context, p *model.PendingPurchase) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, pendingKey(p.UserID), data, r.ttl)
}

func (r *PendingPurchaseRepo) Load(ctx context.Context, userID string) (*model.PendingPurchase, error) {
	data, err := r.client.Get(ctx, pendingKey(userID))
	if err != nil {
		return nil, err
	}
	var p model.PendingPurchase
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PendingPurchaseRepo) Clear(ctx context.Context, userID string) error {
	return r.client.Del(ctx, pendingKey(userID))
}

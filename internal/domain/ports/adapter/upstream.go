package adapter

import (
	"context"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
)

// Gateways over the upstream subscription API. Expected failures come back
// as a failed Result, never as a panic.

type PlanCatalog interface {
	ListPlans(ctx context.Context) domain.Result[[]model.Plan]
}

type PurchaseGateway interface {
	Buy(ctx context.Context, userID, planID string) domain.Result[model.PurchaseResult]
}

type TopupGateway interface {
	CreateTopup(ctx context.Context, userID string, amount int64) domain.Result[model.TopupOrder]
	TopupStatus(ctx context.Context, orderID string) domain.Result[model.TopupOrder]
}

type AccountGateway interface {
	User(ctx context.Context, userID string) domain.Result[model.UserAccount]
	Balance(ctx context.Context, userID string) domain.Result[int64]
	// Subscriptions lists a user's subscriptions; a nil active returns all.
	Subscriptions(ctx context.Context, userID string, active *bool) domain.Result[[]model.Subscription]
}

// Upstream is the full surface of the subscription API client.
type Upstream interface {
	PlanCatalog
	PurchaseGateway
	TopupGateway
	AccountGateway
}

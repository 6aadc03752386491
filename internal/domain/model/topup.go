package model

import "time"

type TopupStatus string

const (
	TopupStatusPending   TopupStatus = "pending"
	TopupStatusCompleted TopupStatus = "completed"
	TopupStatusFailed    TopupStatus = "failed"
)

// Terminal reports whether the external gateway has finished with the order.
func (s TopupStatus) Terminal() bool {
	return s == TopupStatusCompleted || s == TopupStatusFailed
}

// CanTransition enforces the one-way order lifecycle.
func (s TopupStatus) CanTransition(next TopupStatus) bool {
	if s == next {
		return true
	}
	return s == TopupStatusPending && next.Terminal()
}

// TopupOrder is a balance deposit owned by the top-up gateway. This service
// only observes it.
type TopupOrder struct {
	TopupID     int64       `json:"topupId,omitempty"`
	OrderID     string      `json:"orderId"`
	Amount      int64       `json:"amount"`
	PaymentURL  string      `json:"paymentUrl,omitempty"`
	Status      TopupStatus `json:"status,omitempty"`
	CompletedAt string      `json:"completedAt,omitempty"`

	// Expired is set locally when polling gave up before a terminal status.
	Expired bool `json:"-"`
}

// PendingPurchase survives a full page reload while the user is away at the
// payment provider.
type PendingPurchase struct {
	OrderID   string    `json:"orderId"`
	PlanID    string    `json:"planId"`
	UserID    string    `json:"userId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

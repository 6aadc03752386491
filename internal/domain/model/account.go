package model

// UserAccount is the upstream view of a user and their wallet.
type UserAccount struct {
	ID            int64          `json:"id"`
	TelegramID    string         `json:"telegramId"`
	Username      string         `json:"username"`
	Balance       int64          `json:"balance"`
	CreatedAt     string         `json:"createdAt"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
}

// Shortfall is how much must be topped up before price can be charged.
func Shortfall(price, balance int64) int64 {
	if balance <= 0 {
		return price
	}
	if d := price - balance; d > 0 {
		return d
	}
	return 0
}

package model

import "time"

// CheckoutState is the lifecycle of one purchase attempt.
type CheckoutState string

const (
	CheckoutSelectingPlan       CheckoutState = "selecting_plan"
	CheckoutCharging            CheckoutState = "charging"
	CheckoutInsufficientBalance CheckoutState = "insufficient_balance"
	CheckoutAwaitingTopup       CheckoutState = "awaiting_topup"
	CheckoutSucceeded           CheckoutState = "succeeded"
	CheckoutFailed              CheckoutState = "failed"
	CheckoutTopupFailed         CheckoutState = "topup_failed"
	CheckoutCheckLater          CheckoutState = "check_later"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutSelectingPlan:       {CheckoutCharging, CheckoutFailed},
	CheckoutCharging:            {CheckoutSucceeded, CheckoutInsufficientBalance, CheckoutFailed},
	CheckoutInsufficientBalance: {CheckoutAwaitingTopup, CheckoutCharging, CheckoutFailed},
	CheckoutAwaitingTopup:       {CheckoutCharging, CheckoutTopupFailed, CheckoutCheckLater},
	CheckoutTopupFailed:         {CheckoutAwaitingTopup, CheckoutCharging},
	CheckoutCheckLater:          {CheckoutAwaitingTopup, CheckoutCharging},
	CheckoutFailed:              {CheckoutCharging},
}

func (s CheckoutState) CanTransition(next CheckoutState) bool {
	for _, n := range checkoutTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal states end the automatic flow; each one offers a recovery action.
func (s CheckoutState) Terminal() bool {
	switch s {
	case CheckoutSucceeded, CheckoutFailed, CheckoutTopupFailed, CheckoutCheckLater:
		return true
	}
	return false
}

// RecoveryAction tells the browser which way out of a state to offer.
type RecoveryAction string

const (
	RecoveryNone         RecoveryAction = ""
	RecoveryRetry        RecoveryAction = "retry"
	RecoveryReselectPlan RecoveryAction = "reselect_plan"
	RecoveryTopup        RecoveryAction = "topup"
	RecoveryCheckLater   RecoveryAction = "check_later"
	RecoveryContact      RecoveryAction = "contact"
)

// CheckoutView is the read model of a checkout session served to the browser.
type CheckoutView struct {
	SessionID    string         `json:"sessionId"`
	UserID       string         `json:"userId"`
	Temporary    bool           `json:"temporary"`
	State        CheckoutState  `json:"state"`
	Plan         *Plan          `json:"plan,omitempty"`
	Order        *TopupOrder    `json:"order,omitempty"`
	Subscription *Subscription  `json:"subscription,omitempty"`
	NewBalance   int64          `json:"newBalance,omitempty"`
	Charged      int64          `json:"charged,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	Message      string         `json:"message,omitempty"`
	Recovery     RecoveryAction `json:"recovery,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

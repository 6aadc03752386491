package model

// Subscription is the entitlement issued by the upstream after a successful
// charge. Both URLs are delivery links for the VPN client configuration.
type Subscription struct {
	ID               int64  `json:"id"`
	PlanID           string `json:"planId"`
	PlanName         string `json:"planName"`
	Price            int64  `json:"price"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	IsActive         bool   `json:"isActive"`
	SubscriptionURL  string `json:"subscriptionUrl"`
	SubscriptionURL2 string `json:"subscriptionUrl2"`
}

// DeliveryURLs returns the primary and backup links, skipping empty ones.
func (s Subscription) DeliveryURLs() []string {
	out := make([]string, 0, 2)
	for _, u := range []string{s.SubscriptionURL, s.SubscriptionURL2} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// PurchaseResult is the payload of a successful balance charge.
type PurchaseResult struct {
	Subscription Subscription `json:"subscription"`
	NewBalance   int64        `json:"newBalance"`
	Charged      int64        `json:"charged"`
}

package model

import "vpn-checkout/internal/domain"

// Plan is a purchasable VPN tariff as returned by the plan catalog.
// Prices are integers in the smallest currency unit.
type Plan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Label         string `json:"label,omitempty"`
	Price         int64  `json:"price"`
	Duration      int    `json:"duration"`
	Months        int    `json:"months,omitempty"`
	PricePerMonth int64  `json:"pricePerMonth,omitempty"`
	Description   string `json:"description"`
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// PerMonth returns the advertised monthly price, deriving it from the total
// when the catalog did not supply one.
func (p Plan) PerMonth() int64 {
	if p.PricePerMonth > 0 {
		return p.PricePerMonth
	}
	months := p.Months
	if months <= 0 {
		months = p.Duration
	}
	if months <= 0 {
		return p.Price
	}
	return p.Price / int64(months)
}

// FindPlan looks a plan up by id in a catalog listing.
func FindPlan(plans []Plan, id string) (Plan, error) {
	for _, p := range plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, domain.ErrInvalidPlan
}

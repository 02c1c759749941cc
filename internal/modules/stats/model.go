// README: Vendor and delivery partner running aggregates.
package stats

import (
	"github.com/shopspring/decimal"

	"streeteats/internal/types"
)

type Kind string

const (
	KindVendor  Kind = "vendor"
	KindPartner Kind = "partner"
)

// Subject identifies the entity a rating sample is added to.
type Subject struct {
	Kind Kind
	ID   types.ID
}

// Rating is a running aggregate kept as sum and count; the average is derived.
type Rating struct {
	Sum   int64 `json:"sum"`
	Count int   `json:"count"`
}

func (r Rating) Average() float64 {
	if r.Count == 0 {
		return 0
	}
	return float64(r.Sum) / float64(r.Count)
}

type VendorStats struct {
	VendorID     types.ID        `json:"vendorId"`
	PlacedOrders int             `json:"placedOrders"`
	TotalOrders  int             `json:"totalOrders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Rating       Rating          `json:"rating"`
}

type PartnerStats struct {
	PartnerID       types.ID        `json:"partnerId"`
	TotalDeliveries int             `json:"totalDeliveries"`
	TotalEarnings   decimal.Decimal `json:"totalEarnings"`
	Rating          Rating          `json:"rating"`
}

// runningAverage folds score into an average over count samples. Rating.Average
// must agree with it for any sequence of scores.
func runningAverage(avg float64, count int, score int) float64 {
	return (avg*float64(count) + float64(score)) / float64(count+1)
}

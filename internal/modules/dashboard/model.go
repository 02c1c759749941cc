// README: Read models for the vendor and delivery partner dashboards.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/order"
	"streeteats/internal/modules/stats"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Tally is a count of orders and the money they moved.
type Tally struct {
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Dish struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Orders   int    `json:"orders"`
}

type Review struct {
	OrderID string        `json:"orderId"`
	Rating  *order.Rating `json:"rating"`
}

type VendorDashboard struct {
	Stats         stats.VendorStats `json:"stats"`
	AverageRating float64           `json:"averageRating"`
	Today         Tally             `json:"today"`
	Week          Tally             `json:"week"`
	Pending       []*order.Order    `json:"pendingOrders"`
	TopDishes     []Dish            `json:"topDishes"`
	Reviews       []Review          `json:"recentReviews"`
}

type PartnerToday struct {
	Deliveries  int             `json:"deliveries"`
	Earnings    decimal.Decimal `json:"earnings"`
	TotalOrders int             `json:"totalOrders"`
}

// Offer is a waiting delivery order shown to partners.
type Offer struct {
	Order            *order.Order    `json:"order"`
	EstimatedEarning decimal.Decimal `json:"estimatedEarning"`
	DistanceKm       *float64        `json:"distanceKm,omitempty"`
}

type PartnerDashboard struct {
	Partner       dispatch.Partner   `json:"partner"`
	Stats         stats.PartnerStats `json:"stats"`
	AverageRating float64            `json:"averageRating"`
	Today         PartnerToday       `json:"todayStats"`
	Active        []*order.Order     `json:"activeOrders"`
	Available     []Offer            `json:"availableOrders"`
}

type HistoryQuery struct {
	Status string
	Page   int
	Limit  int
}

type HistoryEntry struct {
	Order          *order.Order    `json:"order"`
	Earning        decimal.Decimal `json:"earning"`
	DeliveryRating int             `json:"deliveryRating,omitempty"`
}

type History struct {
	Entries []HistoryEntry `json:"orders"`
	Page    int            `json:"current"`
	Pages   int            `json:"pages"`
	Total   int            `json:"total"`
}

type EarningsDay struct {
	Date       string          `json:"date"`
	Deliveries int             `json:"deliveries"`
	Earnings   decimal.Decimal `json:"earnings"`
}

type Earnings struct {
	Period             Period          `json:"period"`
	Since              time.Time       `json:"since"`
	TotalDeliveries    int             `json:"totalDeliveries"`
	TotalEarnings      decimal.Decimal `json:"totalEarnings"`
	AveragePerDelivery decimal.Decimal `json:"averagePerDelivery"`
	Chart              []EarningsDay   `json:"chartData"`
}

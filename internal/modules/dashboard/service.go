// README: Dashboard service: read-only summaries over orders, stats and partners.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/order"
	"streeteats/internal/modules/stats"
	"streeteats/internal/types"
)

const (
	// scanLimit bounds the orders read for one summary.
	scanLimit      = 500
	availableLimit = 10
	topDishes      = 5
	recentReviews  = 5
)

var (
	pendingStatuses = []order.Status{order.StatusPlaced, order.StatusConfirmed, order.StatusAccepted, order.StatusPreparing}
	activeStatuses  = []order.Status{order.StatusPickedUp, order.StatusOutForDelivery}
	liveStatuses    = []order.Status{
		order.StatusPlaced, order.StatusConfirmed, order.StatusAccepted, order.StatusPreparing,
		order.StatusReady, order.StatusReadyForPickup, order.StatusPickedUp,
		order.StatusOutForDelivery, order.StatusDelivered,
	}
)

// Orders is the read side of the order store.
type Orders interface {
	List(ctx context.Context, f order.ListFilter) ([]*order.Order, int, error)
	FindUnassignedReady(ctx context.Context, limit int) ([]*order.Order, error)
}

type Stats interface {
	Vendor(ctx context.Context, id types.ID) (stats.VendorStats, error)
	Partner(ctx context.Context, id types.ID) (stats.PartnerStats, error)
}

type Partners interface {
	Get(ctx context.Context, id types.ID) (dispatch.Partner, error)
}

type Service struct {
	orders   Orders
	stats    Stats
	partners Partners
	earning  decimal.Decimal
	log      zerolog.Logger
	now      func() time.Time
}

// NewService credits earningPerDelivery for every delivered order, the same flat
// amount the stats aggregator uses.
func NewService(orders Orders, st Stats, partners Partners, earningPerDelivery decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		orders:   orders,
		stats:    st,
		partners: partners,
		earning:  earningPerDelivery,
		log:      logger.With().Str("module", "dashboard").Logger(),
		now:      time.Now,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Service) Vendor(ctx context.Context, vendorID types.ID) (*VendorDashboard, error) {
	if vendorID == "" {
		return nil, order.ErrAccessDenied
	}
	now := s.now()
	out := &VendorDashboard{}
	var today, week, pending, rated []*order.Order

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Stats, err = s.stats.Vendor(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		today, _, err = s.orders.List(gctx, order.ListFilter{
			VendorID: vendorID, Statuses: liveStatuses, CreatedAfter: startOfDay(now), Limit: scanLimit,
		})
		return err
	})
	g.Go(func() (err error) {
		week, _, err = s.orders.List(gctx, order.ListFilter{
			VendorID: vendorID, Statuses: []order.Status{order.StatusDelivered},
			CreatedAfter: now.AddDate(0, 0, -7), Limit: scanLimit,
		})
		return err
	})
	g.Go(func() (err error) {
		pending, _, err = s.orders.List(gctx, order.ListFilter{
			VendorID: vendorID, Statuses: pendingStatuses, Limit: scanLimit,
		})
		return err
	})
	g.Go(func() (err error) {
		rated, _, err = s.orders.List(gctx, order.ListFilter{
			VendorID: vendorID, Statuses: []order.Status{order.StatusDelivered}, Limit: scanLimit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vendor dashboard: %w", err)
	}

	out.AverageRating = out.Stats.Rating.Average()
	out.Today = tally(today)
	out.Week = tally(week)
	out.Pending = pending
	out.TopDishes = rankDishes(week, topDishes)
	for _, o := range rated {
		if o.Rating == nil {
			continue
		}
		out.Reviews = append(out.Reviews, Review{OrderID: string(o.ID), Rating: o.Rating})
		if len(out.Reviews) == recentReviews {
			break
		}
	}
	return out, nil
}

func tally(orders []*order.Order) Tally {
	t := Tally{Orders: len(orders), Revenue: decimal.Zero}
	for _, o := range orders {
		t.Revenue = t.Revenue.Add(o.Pricing.Total)
	}
	return t
}

// rankDishes orders menu items by quantity sold, then by name.
func rankDishes(orders []*order.Order, n int) []Dish {
	byName := map[string]*Dish{}
	for _, o := range orders {
		for _, it := range o.Items {
			d, ok := byName[it.Name]
			if !ok {
				d = &Dish{Name: it.Name}
				byName[it.Name] = d
			}
			d.Quantity += it.Quantity
			d.Orders++
		}
	}
	dishes := make([]Dish, 0, len(byName))
	for _, d := range byName {
		dishes = append(dishes, *d)
	}
	sort.Slice(dishes, func(i, j int) bool {
		if dishes[i].Quantity != dishes[j].Quantity {
			return dishes[i].Quantity > dishes[j].Quantity
		}
		return dishes[i].Name < dishes[j].Name
	})
	if len(dishes) > n {
		dishes = dishes[:n]
	}
	return dishes
}

// Partner fails with dispatch.ErrPartnerNotFound when the partner has no profile.
func (s *Service) Partner(ctx context.Context, partnerID types.ID) (*PartnerDashboard, error) {
	p, err := s.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &PartnerDashboard{Partner: p}
	var today, active, waiting []*order.Order

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Stats, err = s.stats.Partner(gctx, partnerID)
		return err
	})
	g.Go(func() (err error) {
		today, _, err = s.orders.List(gctx, order.ListFilter{
			PartnerID: partnerID, CreatedAfter: startOfDay(now), Limit: scanLimit,
		})
		return err
	})
	g.Go(func() (err error) {
		active, _, err = s.orders.List(gctx, order.ListFilter{
			PartnerID: partnerID, Statuses: activeStatuses, Limit: scanLimit,
		})
		return err
	})
	g.Go(func() (err error) {
		waiting, err = s.orders.FindUnassignedReady(gctx, availableLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("partner dashboard: %w", err)
	}

	out.AverageRating = out.Stats.Rating.Average()
	delivered := 0
	for _, o := range today {
		if o.Status == order.StatusDelivered {
			delivered++
		}
	}
	out.Today = PartnerToday{
		Deliveries:  delivered,
		Earnings:    s.earning.Mul(decimal.NewFromInt(int64(delivered))),
		TotalOrders: len(today),
	}
	out.Active = active
	out.Available = make([]Offer, 0, len(waiting))
	for _, o := range waiting {
		offer := Offer{Order: o, EstimatedEarning: s.earning}
		if p.Location != nil {
			d := dispatch.DistanceKm(*p.Location, o.PickupLocation)
			offer.DistanceKm = &d
		}
		out.Available = append(out.Available, offer)
	}
	return out, nil
}

// History pages through the partner's orders newest first.
func (s *Service) History(ctx context.Context, partnerID types.ID, q HistoryQuery) (*History, error) {
	if partnerID == "" {
		return nil, order.ErrAccessDenied
	}
	f := order.ListFilter{PartnerID: partnerID}
	if q.Status != "" && q.Status != "all" {
		st, ok := order.ParseStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", order.ErrValidation, q.Status)
		}
		f.Statuses = []order.Status{st}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	f.Limit = q.Limit
	f.Offset = (q.Page - 1) * q.Limit

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("delivery history: %w", err)
	}
	h := &History{
		Entries: make([]HistoryEntry, 0, len(orders)),
		Page:    q.Page,
		Pages:   (total + q.Limit - 1) / q.Limit,
		Total:   total,
	}
	for _, o := range orders {
		e := HistoryEntry{Order: o, Earning: decimal.Zero}
		if o.Status == order.StatusDelivered {
			e.Earning = s.earning
		}
		if o.Rating != nil {
			e.DeliveryRating = o.Rating.Delivery
		}
		h.Entries = append(h.Entries, e)
	}
	return h, nil
}

// Since returns the start of the window p covers, ending at now.
func (p Period) Since(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodMonth:
		return now.AddDate(0, -1, 0), true
	case PeriodYear:
		return now.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

// Earnings sums flat per-delivery earnings over the period, grouped by delivery date.
func (s *Service) Earnings(ctx context.Context, partnerID types.ID, period Period) (*Earnings, error) {
	if partnerID == "" {
		return nil, order.ErrAccessDenied
	}
	if period == "" {
		period = PeriodWeek
	}
	since, ok := period.Since(s.now())
	if !ok {
		return nil, fmt.Errorf("%w: period must be week, month or year", order.ErrValidation)
	}
	delivered, _, err := s.orders.List(ctx, order.ListFilter{
		PartnerID:      partnerID,
		Statuses:       []order.Status{order.StatusDelivered},
		DeliveredAfter: since,
		Limit:          scanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("delivery earnings: %w", err)
	}

	byDate := map[string]int{}
	for _, o := range delivered {
		byDate[o.Timing.DeliveredAt.UTC().Format(time.DateOnly)]++
	}
	out := &Earnings{
		Period:             period,
		Since:              since,
		TotalDeliveries:    len(delivered),
		TotalEarnings:      s.earning.Mul(decimal.NewFromInt(int64(len(delivered)))),
		AveragePerDelivery: decimal.Zero,
		Chart:              make([]EarningsDay, 0, len(byDate)),
	}
	if len(delivered) > 0 {
		out.AveragePerDelivery = s.earning
	}
	for date, n := range byDate {
		out.Chart = append(out.Chart, EarningsDay{
			Date:       date,
			Deliveries: n,
			Earnings:   s.earning.Mul(decimal.NewFromInt(int64(n))),
		})
	}
	sort.Slice(out.Chart, func(i, j int) bool { return out.Chart[i].Date < out.Chart[j].Date })
	s.log.Debug().Str("partner", string(partnerID)).Str("period", string(period)).Int("deliveries", len(delivered)).Msg("earnings computed")
	return out, nil
}

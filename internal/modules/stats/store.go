// README: Stats storage; every mutation is a single atomic increment.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"streeteats/internal/types"
)

var ErrUnknownKind = errors.New("unknown stats subject kind")

type Store interface {
	IncrementPlaced(ctx context.Context, vendorID types.ID) error
	AddVendorDelivery(ctx context.Context, vendorID types.ID, revenue decimal.Decimal) error
	AddPartnerDelivery(ctx context.Context, partnerID types.ID, earning decimal.Decimal) error
	// AddRating adds one sample and returns the aggregate after the write.
	AddRating(ctx context.Context, s Subject, score int) (Rating, error)
	Vendor(ctx context.Context, vendorID types.ID) (VendorStats, error)
	Partner(ctx context.Context, partnerID types.ID) (PartnerStats, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) IncrementPlaced(ctx context.Context, vendorID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vendor_stats (vendor_id, placed_orders) VALUES ($1, 1)
		ON CONFLICT (vendor_id) DO UPDATE SET placed_orders = vendor_stats.placed_orders + 1`,
		string(vendorID))
	return err
}

func (s *PgStore) AddVendorDelivery(ctx context.Context, vendorID types.ID, revenue decimal.Decimal) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vendor_stats (vendor_id, total_orders, total_revenue) VALUES ($1, 1, $2::numeric)
		ON CONFLICT (vendor_id) DO UPDATE SET
			total_orders = vendor_stats.total_orders + 1,
			total_revenue = vendor_stats.total_revenue + EXCLUDED.total_revenue`,
		string(vendorID), revenue.String())
	return err
}

func (s *PgStore) AddPartnerDelivery(ctx context.Context, partnerID types.ID, earning decimal.Decimal) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO partner_stats (partner_id, total_deliveries, total_earnings) VALUES ($1, 1, $2::numeric)
		ON CONFLICT (partner_id) DO UPDATE SET
			total_deliveries = partner_stats.total_deliveries + 1,
			total_earnings = partner_stats.total_earnings + EXCLUDED.total_earnings`,
		string(partnerID), earning.String())
	return err
}

func (s *PgStore) AddRating(ctx context.Context, subj Subject, score int) (Rating, error) {
	var q string
	switch subj.Kind {
	case KindVendor:
		q = `
		INSERT INTO vendor_stats (vendor_id, rating_sum, rating_count) VALUES ($1, $2, 1)
		ON CONFLICT (vendor_id) DO UPDATE SET
			rating_sum = vendor_stats.rating_sum + EXCLUDED.rating_sum,
			rating_count = vendor_stats.rating_count + 1
		RETURNING rating_sum, rating_count`
	case KindPartner:
		q = `
		INSERT INTO partner_stats (partner_id, rating_sum, rating_count) VALUES ($1, $2, 1)
		ON CONFLICT (partner_id) DO UPDATE SET
			rating_sum = partner_stats.rating_sum + EXCLUDED.rating_sum,
			rating_count = partner_stats.rating_count + 1
		RETURNING rating_sum, rating_count`
	default:
		return Rating{}, fmt.Errorf("%w: %q", ErrUnknownKind, subj.Kind)
	}
	var r Rating
	err := s.db.QueryRow(ctx, q, string(subj.ID), score).Scan(&r.Sum, &r.Count)
	return r, err
}

func (s *PgStore) Vendor(ctx context.Context, vendorID types.ID) (VendorStats, error) {
	v := VendorStats{VendorID: vendorID, TotalRevenue: decimal.Zero}
	var revenue string
	err := s.db.QueryRow(ctx, `
		SELECT placed_orders, total_orders, total_revenue::text, rating_sum, rating_count
		FROM vendor_stats WHERE vendor_id = $1`, string(vendorID),
	).Scan(&v.PlacedOrders, &v.TotalOrders, &revenue, &v.Rating.Sum, &v.Rating.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, nil
	}
	if err != nil {
		return v, err
	}
	v.TotalRevenue, err = decimal.NewFromString(revenue)
	return v, err
}

func (s *PgStore) Partner(ctx context.Context, partnerID types.ID) (PartnerStats, error) {
	p := PartnerStats{PartnerID: partnerID, TotalEarnings: decimal.Zero}
	var earnings string
	err := s.db.QueryRow(ctx, `
		SELECT total_deliveries, total_earnings::text, rating_sum, rating_count
		FROM partner_stats WHERE partner_id = $1`, string(partnerID),
	).Scan(&p.TotalDeliveries, &earnings, &p.Rating.Sum, &p.Rating.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.TotalEarnings, err = decimal.NewFromString(earnings)
	return p, err
}

// MemoryStore serializes all updates under one mutex.
type MemoryStore struct {
	mu       sync.Mutex
	vendors  map[types.ID]*VendorStats
	partners map[types.ID]*PartnerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:  make(map[types.ID]*VendorStats),
		partners: make(map[types.ID]*PartnerStats),
	}
}

func (m *MemoryStore) vendor(id types.ID) *VendorStats {
	v, ok := m.vendors[id]
	if !ok {
		v = &VendorStats{VendorID: id, TotalRevenue: decimal.Zero}
		m.vendors[id] = v
	}
	return v
}

func (m *MemoryStore) partner(id types.ID) *PartnerStats {
	p, ok := m.partners[id]
	if !ok {
		p = &PartnerStats{PartnerID: id, TotalEarnings: decimal.Zero}
		m.partners[id] = p
	}
	return p
}

func (m *MemoryStore) IncrementPlaced(_ context.Context, vendorID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendor(vendorID).PlacedOrders++
	return nil
}

func (m *MemoryStore) AddVendorDelivery(_ context.Context, vendorID types.ID, revenue decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.vendor(vendorID)
	v.TotalOrders++
	v.TotalRevenue = v.TotalRevenue.Add(revenue)
	return nil
}

func (m *MemoryStore) AddPartnerDelivery(_ context.Context, partnerID types.ID, earning decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partner(partnerID)
	p.TotalDeliveries++
	p.TotalEarnings = p.TotalEarnings.Add(earning)
	return nil
}

func (m *MemoryStore) AddRating(_ context.Context, s Subject, score int) (Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r *Rating
	switch s.Kind {
	case KindVendor:
		r = &m.vendor(s.ID).Rating
	case KindPartner:
		r = &m.partner(s.ID).Rating
	default:
		return Rating{}, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	r.Sum += int64(score)
	r.Count++
	return *r, nil
}

func (m *MemoryStore) Vendor(_ context.Context, vendorID types.ID) (VendorStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.vendor(vendorID), nil
}

func (m *MemoryStore) Partner(_ context.Context, partnerID types.ID) (PartnerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.partner(partnerID), nil
}

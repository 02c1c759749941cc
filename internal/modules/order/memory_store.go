// README: In-memory order store for tests and single-process dev runs.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"streeteats/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	orders  map[types.ID]*Order
	numbers map[string]types.ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[types.ID]*Order),
		numbers: make(map[string]types.ID),
	}
}

func (m *MemoryStore) Insert(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.numbers[o.OrderNumber]; ok {
		return ErrDuplicateNumber
	}
	m.orders[o.ID] = o.Clone()
	m.numbers[o.OrderNumber] = o.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Order
	for _, o := range m.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.VendorID != "" && o.VendorID != f.VendorID {
			continue
		}
		if f.PartnerID != "" && (o.DeliveryPartnerID == nil || *o.DeliveryPartnerID != f.PartnerID) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, o.Status) {
			continue
		}
		if !f.CreatedAfter.IsZero() && o.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if !f.DeliveredAfter.IsZero() && (o.Timing.DeliveredAt == nil || o.Timing.DeliveredAt.Before(f.DeliveredAfter)) {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	out := make([]*Order, 0, end-start)
	for _, o := range matched[start:end] {
		out = append(out, o.Clone())
	}
	return out, total, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, next *Order, from Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[next.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != from || cur.Version != version {
		return false, nil
	}
	stored := next.Clone()
	stored.Version = version + 1
	m.orders[next.ID] = stored
	return true, nil
}

func (m *MemoryStore) AssignPartner(_ context.Context, id, partnerID types.ID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if !contains(awaitingPartner, cur.Status) || cur.OrderType != TypeDelivery || cur.DeliveryPartnerID != nil {
		return false, nil
	}
	p := partnerID
	ts := at
	cur.DeliveryPartnerID = &p
	cur.Timing.AssignedAt = &ts
	cur.Version++
	cur.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) AttachRating(_ context.Context, id types.ID, r Rating) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != StatusDelivered || cur.Rating != nil {
		return false, nil
	}
	v := r
	cur.Rating = &v
	cur.Version++
	cur.UpdatedAt = r.RatedAt
	return true, nil
}

func (m *MemoryStore) UpdatePayment(_ context.Context, id types.ID, from PaymentStatus, p Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Payment.Status != from {
		return false, nil
	}
	cur.Payment = p
	cur.Payment.PaidAt = cloneTime(p.PaidAt)
	cur.Payment.RefundedAt = cloneTime(p.RefundedAt)
	cur.Version++
	return true, nil
}

func (m *MemoryStore) FindStale(_ context.Context, statuses []Status, createdBefore time.Time, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if contains(statuses, o.Status) && o.CreatedAt.Before(createdBefore) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FindUnassignedReady(_ context.Context, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if contains(awaitingPartner, o.Status) && o.OrderType == TypeDelivery && o.DeliveryPartnerID == nil {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FindByGatewayOrder(_ context.Context, gatewayOrderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Payment.GatewayOrderID == gatewayOrderID {
			return o.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

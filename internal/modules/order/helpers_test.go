// README: Shared fixtures for order tests (in-memory store, recording fakes, fixed clock).
package order

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/modules/pricing"
	"streeteats/internal/types"
)

var (
	vendorActor   = Actor{Role: RoleVendor, ID: "v1"}
	customerActor = Actor{Role: RoleCustomer, ID: "c1"}
	partnerActor  = Actor{Role: RoleDelivery, ID: "p1"}
	adminActor    = Actor{Role: RoleAdmin, ID: "admin"}
)

type published struct {
	Room    string
	Event   string
	Payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Room: room, Event: event, Payload: payload})
}

func (r *recordingNotifier) count(room, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Room == room && e.Event == event {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeStats struct {
	mu             sync.Mutex
	placed         map[types.ID]int
	delivered      int
	revenue        decimal.Decimal
	vendorRatings  []int
	partnerRatings []int
}

func newFakeStats() *fakeStats {
	return &fakeStats{placed: make(map[types.ID]int), revenue: decimal.Zero}
}

func (f *fakeStats) OrderPlaced(_ context.Context, vendorID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed[vendorID]++
	return nil
}

func (f *fakeStats) OrderDelivered(_ context.Context, _ types.ID, _ *types.ID, total decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered++
	f.revenue = f.revenue.Add(total)
	return nil
}

func (f *fakeStats) RateVendor(_ context.Context, _ types.ID, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vendorRatings = append(f.vendorRatings, score)
	return nil
}

func (f *fakeStats) RatePartner(_ context.Context, _ types.ID, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partnerRatings = append(f.partnerRatings, score)
	return nil
}

func (f *fakeStats) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}

type fakeFinder struct {
	id    types.ID
	found bool
	err   error
	calls atomic.Int32
}

func (f *fakeFinder) FindPartnerFor(context.Context, *Order) (types.ID, bool, error) {
	f.calls.Add(1)
	return f.id, f.found, f.err
}

// fakeCouriers treats every partner as eligible unless listed otherwise.
type fakeCouriers struct {
	mu         sync.Mutex
	unknown    map[types.ID]bool
	ineligible map[types.ID]bool
}

func (f *fakeCouriers) Eligible(_ context.Context, id types.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unknown[id] {
		return false, fmt.Errorf("%w: partner %s", ErrNotFound, id)
	}
	return !f.ineligible[id], nil
}

type recordingMail struct {
	mu        sync.Mutex
	confirmed []types.ID
	changed   []Status
	err       error
}

func (r *recordingMail) OrderConfirmed(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, o.ID)
	return r.err
}

func (r *recordingMail) StatusChanged(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, o.Status)
	return r.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	notifier *recordingNotifier
	stats    *fakeStats
	finder   *fakeFinder
	couriers *fakeCouriers
	mail     *recordingMail
	clock    *testClock
}

func newTestCatalog() *MemoryCatalog {
	c := NewMemoryCatalog()
	c.Put(Vendor{
		ID:       "v1",
		Active:   true,
		Location: types.Point{Lat: 12.9716, Lng: 77.5946},
		PrepTime: 15 * time.Minute,
		Menu: map[types.ID]MenuItem{
			"m1": {ID: "m1", Name: "Masala Dosa", Price: decimal.NewFromInt(100), Available: true},
			"m2": {ID: "m2", Name: "Filter Coffee", Price: decimal.NewFromInt(40), Available: false},
		},
	})
	c.Put(Vendor{ID: "v_closed", Active: false, Menu: map[types.ID]MenuItem{}})
	return c
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemoryStore(),
		notifier: &recordingNotifier{},
		stats:    newFakeStats(),
		finder:   &fakeFinder{id: "p1", found: true},
		couriers: &fakeCouriers{unknown: map[types.ID]bool{}, ineligible: map[types.ID]bool{}},
		mail:     &recordingMail{},
		clock:    &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
	}
	env.svc = NewService(Deps{
		Store:   env.store,
		Catalog: newTestCatalog(),
		Pricing: pricing.NewService(pricing.Config{
			TaxRate:     decimal.RequireFromString("0.05"),
			DeliveryFee: decimal.NewFromInt(30),
		}),
		Partners: env.finder,
		Couriers: env.couriers,
		Notifier: env.notifier,
		Mail:     env.mail,
		Stats:    env.stats,
		Logger:   zerolog.Nop(),
		Clock:    env.clock.Now,
	}, DefaultConfig())
	return env
}

func testAddress() *Address {
	return &Address{
		Street:   "12 MG Road",
		City:     "Bengaluru",
		Pincode:  "560001",
		Location: types.Point{Lat: 12.9750, Lng: 77.6050},
	}
}

func (e *testEnv) place(t *testing.T, ot OrderType) *Order {
	t.Helper()
	cmd := PlaceCommand{
		CustomerID:    "c1",
		VendorID:      "v1",
		Items:         []ItemRequest{{MenuItemID: "m1", Quantity: 2}},
		OrderType:     ot,
		PaymentMethod: PayCOD,
	}
	if ot == TypeDelivery {
		cmd.DeliveryAddress = testAddress()
	}
	o, err := e.svc.Place(context.Background(), cmd)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return o
}

// drive walks the order through statuses, failing the test on the first error.
func (e *testEnv) drive(t *testing.T, id types.ID, actor Actor, statuses ...Status) *Order {
	t.Helper()
	var last *Order
	for _, st := range statuses {
		res, err := e.svc.Transition(context.Background(), TransitionCommand{OrderID: id, To: st, Actor: actor})
		if err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
		assertHistoryMatches(t, res.Order)
		last = res.Order
	}
	return last
}

func assertStatus(t *testing.T, svc *Service, orderID types.ID, want Status) {
	t.Helper()
	o, err := svc.Get(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
}

func assertHistoryMatches(t *testing.T, o *Order) {
	t.Helper()
	if len(o.StatusHistory) == 0 {
		t.Fatal("empty status history")
	}
	if last := o.StatusHistory[len(o.StatusHistory)-1].Status; last != o.Status {
		t.Fatalf("history ends at %s but status is %s", last, o.Status)
	}
}

// README: PgStore tests against a real database; skipped unless STREETEATS_TEST_DSN is set.
package order

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"streeteats/internal/modules/pricing"
	"streeteats/internal/types"
	"streeteats/migrations"
)

func setupPgStore(t *testing.T) (*PgStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("STREETEATS_TEST_DSN")
	if dsn == "" {
		t.Skip("STREETEATS_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE orders, menu_items, vendors"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewPgStore(db), db
}

func TestPgStoreLifecycle(t *testing.T) {
	store, db := setupPgStore(t)
	ctx := context.Background()

	if _, err := db.Exec(ctx, `INSERT INTO vendors (id, is_active, lat, lng, avg_prep_minutes) VALUES ('v1', TRUE, 12.9716, 77.5946, 15)`); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	if _, err := db.Exec(ctx, `INSERT INTO menu_items (id, vendor_id, name, price, is_available) VALUES ('m1', 'v1', 'Masala Dosa', 100.00, TRUE)`); err != nil {
		t.Fatalf("seed menu: %v", err)
	}

	svc := NewService(Deps{
		Store:   store,
		Catalog: NewPgCatalog(db),
		Pricing: pricing.NewService(pricing.Config{
			TaxRate:     decimal.RequireFromString("0.05"),
			DeliveryFee: decimal.NewFromInt(30),
		}),
		Partners: &fakeFinder{id: "p1", found: true},
		Stats:    newFakeStats(),
	}, DefaultConfig())

	o, err := svc.Place(ctx, PlaceCommand{
		CustomerID:      "c1",
		VendorID:        "v1",
		Items:           []ItemRequest{{MenuItemID: "m1", Quantity: 2}},
		OrderType:       TypeDelivery,
		DeliveryAddress: testAddress(),
		PaymentMethod:   PayCOD,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if !o.Pricing.Total.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("total = %s", o.Pricing.Total)
	}

	for _, st := range []Status{StatusAccepted, StatusPreparing, StatusReady} {
		if _, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: st, Actor: vendorActor}); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
	got, err := store.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusReady || got.Version != 3 || got.DeliveryPartnerID == nil || *got.DeliveryPartnerID != "p1" {
		t.Fatalf("unexpected stored order %s v%d %v", got.Status, got.Version, got.DeliveryPartnerID)
	}
	if len(got.StatusHistory) != 4 || got.Timing.ReadyAt == nil {
		t.Fatalf("history/timing not persisted: %d %+v", len(got.StatusHistory), got.Timing)
	}

	// stale version is rejected by the guard
	stale := got.Clone()
	stale.Status = StatusCancelled
	ok, err := store.UpdateStatus(ctx, stale, StatusReady, 2)
	if err != nil || ok {
		t.Fatalf("stale update: ok=%v err=%v", ok, err)
	}

	page, total, err := store.List(ctx, ListFilter{VendorID: "v1", Statuses: []Status{StatusReady}, Limit: 10})
	if err != nil || total != 1 || len(page) != 1 {
		t.Fatalf("list: %d %d %v", total, len(page), err)
	}
}

func TestPgStoreDuplicateNumber(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mk := func(id string) *Order {
		return &Order{
			ID:            types.ID("o-" + id),
			OrderNumber:   "SE2603140001",
			CustomerID:    "c1",
			VendorID:      "v1",
			OrderType:     TypePickup,
			Status:        StatusPlaced,
			StatusHistory: []StatusEntry{{Status: StatusPlaced, At: now, ActorRole: RoleCustomer}},
			Payment:       Payment{Method: PayAtPickup, Status: PaymentPending},
			Timing:        Timing{PlacedAt: now, EstimatedDeliveryAt: now.Add(45 * time.Minute)},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	if err := store.Insert(ctx, mk("1")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.Insert(ctx, mk("2")); !errors.Is(err, ErrDuplicateNumber) {
		t.Fatalf("expected ErrDuplicateNumber, got %v", err)
	}
}

func TestPgStoreAssignmentAndGatewayLookup(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	o := &Order{
		ID:            "o-counter",
		OrderNumber:   "SE2603140002",
		CustomerID:    "c1",
		VendorID:      "v1",
		OrderType:     TypeDelivery,
		Status:        StatusReadyForPickup,
		StatusHistory: []StatusEntry{{Status: StatusReadyForPickup, At: now, ActorRole: RoleVendor}},
		Payment:       Payment{Method: PayOnline, Status: PaymentPending, GatewayOrderID: "order_gw9"},
		Timing:        Timing{PlacedAt: now, EstimatedDeliveryAt: now.Add(45 * time.Minute)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Insert(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := store.FindUnassignedReady(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("unassigned: %d %v", len(pending), err)
	}
	ok, err := store.AssignPartner(ctx, o.ID, "p1", now)
	if err != nil || !ok {
		t.Fatalf("assign at counter: ok=%v err=%v", ok, err)
	}

	got, err := store.FindByGatewayOrder(ctx, "order_gw9")
	if err != nil || got.ID != o.ID || got.DeliveryPartnerID == nil {
		t.Fatalf("gateway lookup: %+v %v", got, err)
	}
	if _, err := store.FindByGatewayOrder(ctx, "order_none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

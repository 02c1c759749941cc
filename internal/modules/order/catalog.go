// README: Read-only vendor and menu lookup used when snapshotting a cart.
package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"streeteats/internal/types"
)

var ErrVendorUnavailable = errors.New("vendor not available")

type MenuItem struct {
	ID        types.ID
	Name      string
	Price     decimal.Decimal
	Available bool
}

type Vendor struct {
	ID       types.ID
	Active   bool
	Location types.Point
	PrepTime time.Duration
	Menu     map[types.ID]MenuItem
}

type Catalog interface {
	// Vendor returns ErrVendorUnavailable when the vendor does not exist.
	Vendor(ctx context.Context, id types.ID) (*Vendor, error)
}

type PgCatalog struct {
	db *pgxpool.Pool
}

func NewPgCatalog(db *pgxpool.Pool) *PgCatalog {
	return &PgCatalog{db: db}
}

func (c *PgCatalog) Vendor(ctx context.Context, id types.ID) (*Vendor, error) {
	v := Vendor{ID: id, Menu: make(map[types.ID]MenuItem)}
	var prepMinutes int
	err := c.db.QueryRow(ctx, `
		SELECT is_active, lat, lng, avg_prep_minutes
		FROM vendors WHERE id = $1`, string(id),
	).Scan(&v.Active, &v.Location.Lat, &v.Location.Lng, &prepMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVendorUnavailable
	}
	if err != nil {
		return nil, err
	}
	v.PrepTime = time.Duration(prepMinutes) * time.Minute

	rows, err := c.db.Query(ctx, `
		SELECT id, name, price::text, is_available
		FROM menu_items WHERE vendor_id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item MenuItem
		var price string
		if err := rows.Scan(&item.ID, &item.Name, &price, &item.Available); err != nil {
			return nil, err
		}
		item.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		v.Menu[item.ID] = item
	}
	return &v, rows.Err()
}

// MemoryCatalog is a fixed catalog for tests and local runs.
type MemoryCatalog struct {
	mu      sync.RWMutex
	vendors map[types.ID]*Vendor
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{vendors: make(map[types.ID]*Vendor)}
}

func (c *MemoryCatalog) Put(v Vendor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vendors[v.ID] = &v
}

func (c *MemoryCatalog) Vendor(_ context.Context, id types.ID) (*Vendor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vendors[id]
	if !ok {
		return nil, ErrVendorUnavailable
	}
	cp := *v
	return &cp, nil
}

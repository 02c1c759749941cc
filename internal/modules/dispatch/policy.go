// README: Assignment policies choosing a partner for an order entering ready.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

// FirstAvailable picks any eligible partner, most recently active first.
type FirstAvailable struct {
	dir Directory
}

func NewFirstAvailable(dir Directory) *FirstAvailable {
	return &FirstAvailable{dir: dir}
}

func (f *FirstAvailable) FindPartnerFor(ctx context.Context, _ *order.Order) (types.ID, bool, error) {
	p, found, err := f.dir.FirstAvailable(ctx)
	if err != nil || !found {
		return "", false, err
	}
	return p.ID, true, nil
}

// Nearest picks the closest eligible partner to the order's pickup point.
type Nearest struct {
	dir      Directory
	locator  Locator
	radiusKm float64
	// poolSize bounds how many nearby partners are checked for eligibility.
	poolSize int
}

func NewNearest(dir Directory, locator Locator, radiusKm float64, poolSize int) *Nearest {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Nearest{dir: dir, locator: locator, radiusKm: radiusKm, poolSize: poolSize}
}

func (n *Nearest) FindPartnerFor(ctx context.Context, o *order.Order) (types.ID, bool, error) {
	if o.PickupLocation.IsZero() {
		return "", false, nil
	}
	ids, err := n.locator.Near(ctx, o.PickupLocation, n.radiusKm, n.poolSize)
	if err != nil {
		return "", false, fmt.Errorf("search nearby partners: %w", err)
	}
	for _, id := range ids {
		p, err := n.dir.Get(ctx, id)
		if errors.Is(err, ErrPartnerNotFound) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if p.Eligible() {
			return p.ID, true, nil
		}
	}
	return "", false, nil
}

// README: Roster answers whether a partner may claim an order on their own.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

type Roster struct {
	dir Directory
}

func NewRoster(dir Directory) *Roster {
	return &Roster{dir: dir}
}

// Eligible reports whether the partner is approved, active and online.
// A partner without a profile is order.ErrNotFound.
func (r *Roster) Eligible(ctx context.Context, partnerID types.ID) (bool, error) {
	p, err := r.dir.Get(ctx, partnerID)
	if errors.Is(err, ErrPartnerNotFound) {
		return false, fmt.Errorf("%w: delivery partner profile %s", order.ErrNotFound, partnerID)
	}
	if err != nil {
		return false, err
	}
	return p.Eligible(), nil
}

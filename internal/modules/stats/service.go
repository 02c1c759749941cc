// README: Aggregator applies order side effects to vendor and partner stats.
package stats

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/types"
)

type Aggregator struct {
	store   Store
	earning decimal.Decimal
	log     zerolog.Logger
}

// NewAggregator credits each delivering partner with earningPerDelivery.
func NewAggregator(store Store, earningPerDelivery decimal.Decimal, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		earning: earningPerDelivery,
		log:     logger.With().Str("module", "stats").Logger(),
	}
}

func (a *Aggregator) OrderPlaced(ctx context.Context, vendorID types.ID) error {
	if err := a.store.IncrementPlaced(ctx, vendorID); err != nil {
		return fmt.Errorf("increment placed orders: %w", err)
	}
	return nil
}

func (a *Aggregator) OrderDelivered(ctx context.Context, vendorID types.ID, partnerID *types.ID, total decimal.Decimal) error {
	if err := a.store.AddVendorDelivery(ctx, vendorID, total); err != nil {
		return fmt.Errorf("add vendor delivery: %w", err)
	}
	if partnerID == nil {
		return nil
	}
	if err := a.store.AddPartnerDelivery(ctx, *partnerID, a.earning); err != nil {
		return fmt.Errorf("add partner delivery: %w", err)
	}
	return nil
}

func (a *Aggregator) RateVendor(ctx context.Context, vendorID types.ID, score int) error {
	_, err := a.Apply(ctx, Subject{Kind: KindVendor, ID: vendorID}, score)
	return err
}

func (a *Aggregator) RatePartner(ctx context.Context, partnerID types.ID, score int) error {
	_, err := a.Apply(ctx, Subject{Kind: KindPartner, ID: partnerID}, score)
	return err
}

// Apply adds one rating sample to s and returns the new aggregate.
func (a *Aggregator) Apply(ctx context.Context, s Subject, score int) (Rating, error) {
	if score < 1 || score > 5 {
		return Rating{}, fmt.Errorf("rating %d out of range", score)
	}
	r, err := a.store.AddRating(ctx, s, score)
	if err != nil {
		return Rating{}, fmt.Errorf("add %s rating: %w", s.Kind, err)
	}
	a.log.Debug().
		Str("kind", string(s.Kind)).
		Str("id", string(s.ID)).
		Float64("average", r.Average()).
		Int("count", r.Count).
		Msg("rating applied")
	return r, nil
}

func (a *Aggregator) Vendor(ctx context.Context, id types.ID) (VendorStats, error) {
	return a.store.Vendor(ctx, id)
}

func (a *Aggregator) Partner(ctx context.Context, id types.ID) (PartnerStats, error) {
	return a.store.Partner(ctx, id)
}

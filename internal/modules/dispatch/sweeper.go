// README: Sweeper retries assignment for delivery orders waiting at the counter without a partner.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

type Assigner interface {
	UnassignedReady(ctx context.Context, limit int) ([]*order.Order, error)
	AssignPartner(ctx context.Context, orderID, partnerID types.ID) (*order.Order, error)
}

type Sweeper struct {
	orders   Assigner
	policy   order.PartnerFinder
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewSweeper(orders Assigner, policy order.PartnerFinder, interval time.Duration, batch int, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		orders:   orders,
		policy:   policy,
		interval: interval,
		batch:    batch,
		log:      logger.With().Str("module", "dispatch_sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("assignment sweep")
				continue
			}
			if n > 0 {
				s.log.Info().Int("assigned", n).Msg("assigned waiting orders")
			}
		}
	}
}

// SweepOnce assigns as many waiting orders as it can and returns the count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	waiting, err := s.orders.UnassignedReady(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for _, o := range waiting {
		partnerID, found, err := s.policy.FindPartnerFor(ctx, o)
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", string(o.ID)).Msg("partner lookup failed")
			continue
		}
		if !found {
			// nobody is free; later orders would get the same answer
			break
		}
		_, err = s.orders.AssignPartner(ctx, o.ID, partnerID)
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, order.ErrStaleState):
			s.log.Debug().Str("order_id", string(o.ID)).Msg("order moved on before assignment")
		default:
			s.log.Error().Err(err).Str("order_id", string(o.ID)).Msg("assign partner")
		}
	}
	return assigned, nil
}

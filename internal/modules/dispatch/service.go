// README: Dispatch service handles partner availability and live location.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

type ActiveOrders interface {
	ActiveDeliveries(ctx context.Context, partnerID types.ID) ([]*order.Order, error)
}

type Service struct {
	dir      Directory
	locator  Locator
	orders   ActiveOrders
	notifier order.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(dir Directory, locator Locator, orders ActiveOrders, notifier order.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		dir:      dir,
		locator:  locator,
		orders:   orders,
		notifier: notifier,
		log:      logger.With().Str("module", "dispatch").Logger(),
		now:      time.Now,
	}
}

// SetAvailability toggles whether the partner receives new deliveries.
// Going offline also drops the partner from the position index.
func (s *Service) SetAvailability(ctx context.Context, partnerID types.ID, online bool) (Partner, error) {
	if err := s.dir.SetOnline(ctx, partnerID, online, s.now()); err != nil {
		return Partner{}, err
	}
	p, err := s.dir.Get(ctx, partnerID)
	if err != nil {
		return Partner{}, err
	}
	if s.locator != nil {
		if !online {
			err = s.locator.Remove(ctx, partnerID)
		} else if p.Location != nil {
			err = s.locator.Add(ctx, partnerID, *p.Location)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("partner_id", string(partnerID)).Msg("update position index")
		}
	}
	s.log.Info().Str("partner_id", string(partnerID)).Bool("online", online).Msg("availability changed")
	return p, nil
}

// UpdateLocation stores the partner position and forwards it to customers
// whose orders the partner is carrying.
func (s *Service) UpdateLocation(ctx context.Context, partnerID types.ID, pt types.Point) error {
	if pt.Lat < -90 || pt.Lat > 90 || pt.Lng < -180 || pt.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", order.ErrValidation)
	}
	now := s.now()
	if err := s.dir.SetLocation(ctx, partnerID, pt, now); err != nil {
		return err
	}
	p, err := s.dir.Get(ctx, partnerID)
	if err != nil {
		return err
	}
	if s.locator != nil && p.IsOnline {
		if err := s.locator.Add(ctx, partnerID, pt); err != nil {
			s.log.Warn().Err(err).Str("partner_id", string(partnerID)).Msg("update position index")
		}
	}

	if s.orders == nil || s.notifier == nil {
		return nil
	}
	active, err := s.orders.ActiveDeliveries(ctx, partnerID)
	if err != nil {
		s.log.Error().Err(err).Str("partner_id", string(partnerID)).Msg("load active deliveries")
		return nil
	}
	for _, o := range active {
		s.notifier.Publish(ctx, notify.CustomerRoom(o.CustomerID), notify.EventPartnerLocation, map[string]any{
			"orderId":           o.ID,
			"deliveryPartnerId": partnerID,
			"location":          pt,
			"timestamp":         now,
		})
	}
	return nil
}

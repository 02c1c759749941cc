// README: Stale order reaper; cancels orders the vendor never picked up.
package order

import (
	"context"
	"errors"
	"time"
)

const ReapReason = "not accepted within timeout"

var reapableStatuses = []Status{StatusPlaced, StatusConfirmed}

// RunTimeoutMonitor cancels stale orders every ReaperInterval until ctx is done.
func (s *Service) RunTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ReapStale(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("reap stale orders")
				continue
			}
			if n > 0 {
				s.log.Info().Int("cancelled", n).Msg("reaped stale orders")
			}
		}
	}
}

// ReapStale cancels orders still in placed/confirmed after ReaperDeadline and
// returns how many it cancelled. Orders that moved on since the scan are skipped.
func (s *Service) ReapStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.ReaperDeadline)
	stale, err := s.store.FindStale(ctx, reapableStatuses, cutoff, s.cfg.ReaperBatch)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range stale {
		_, err := s.Transition(ctx, TransitionCommand{
			OrderID:      o.ID,
			To:           StatusCancelled,
			Actor:        SystemActor,
			ExpectedFrom: o.Status,
			Reason:       ReapReason,
		})
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ErrStaleState), errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrInvalidTransition):
			s.log.Debug().Str("order_id", string(o.ID)).Err(err).Msg("stale order moved on, skipping")
		default:
			s.log.Error().Err(err).Str("order_id", string(o.ID)).Msg("cancel stale order")
		}
	}
	return cancelled, nil
}

// README: Multi sends every event to several transports.
package notify

import (
	"context"
	"errors"
)

type Multi []Transport

func (m Multi) Send(ctx context.Context, e Envelope) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

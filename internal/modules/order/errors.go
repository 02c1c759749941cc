// README: Order error taxonomy; HTTP handlers map these sentinels to status codes.
package order

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrAccessDenied      = errors.New("access denied")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStaleState        = errors.New("order state changed concurrently")
	ErrAlreadyTerminal   = errors.New("order already finished")
	ErrAlreadyRated      = errors.New("order already rated")
	ErrAlreadyAssigned   = errors.New("order already assigned to another partner")
	ErrUpstream          = errors.New("upstream service failure")

	// ErrDuplicateNumber is returned by stores when an order number collides.
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// README: Order persistence contract; every mutation is a conditional update.
package order

import (
	"context"
	"time"

	"streeteats/internal/types"
)

// ListFilter selects orders for one party. Exactly one of the party IDs is set.
type ListFilter struct {
	CustomerID types.ID
	VendorID   types.ID
	PartnerID  types.ID
	Statuses   []Status
	// CreatedAfter, when set, keeps orders created at or after it.
	CreatedAfter time.Time
	// DeliveredAfter, when set, keeps orders delivered at or after it.
	DeliveredAfter time.Time
	Offset         int
	Limit          int
}

type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	// List returns the page newest first together with the total match count.
	List(ctx context.Context, f ListFilter) ([]*Order, int, error)
	// UpdateStatus replaces the mutable state with next when the stored row is
	// still at (from, version). It reports false when the guard did not match.
	UpdateStatus(ctx context.Context, next *Order, from Status, version int) (bool, error)
	// AssignPartner sets the partner on a delivery order waiting in ready or
	// ready_for_pickup that has none.
	AssignPartner(ctx context.Context, id, partnerID types.ID, at time.Time) (bool, error)
	// AttachRating stores r on a delivered order that has no rating yet.
	AttachRating(ctx context.Context, id types.ID, r Rating) (bool, error)
	// UpdatePayment replaces the payment sub-record when its status is still from.
	UpdatePayment(ctx context.Context, id types.ID, from PaymentStatus, p Payment) (bool, error)
	FindStale(ctx context.Context, statuses []Status, createdBefore time.Time, limit int) ([]*Order, error)
	// FindUnassignedReady returns delivery orders in ready or ready_for_pickup with no partner, oldest first.
	FindUnassignedReady(ctx context.Context, limit int) ([]*Order, error)
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*Order, error)
}

// awaitingPartner are the statuses in which a delivery order can still be assigned.
var awaitingPartner = []Status{StatusReady, StatusReadyForPickup}

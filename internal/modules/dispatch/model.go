// README: Delivery partners as seen by dispatch.
package dispatch

import (
	"errors"
	"time"

	"streeteats/internal/types"
)

var ErrPartnerNotFound = errors.New("delivery partner not found")

type PartnerStatus string

const (
	PartnerPending   PartnerStatus = "pending"
	PartnerApproved  PartnerStatus = "approved"
	PartnerRejected  PartnerStatus = "rejected"
	PartnerSuspended PartnerStatus = "suspended"
)

type Partner struct {
	ID        types.ID      `json:"id"`
	Name      string        `json:"name"`
	Phone     string        `json:"phone"`
	Status    PartnerStatus `json:"status"`
	IsActive  bool          `json:"isActive"`
	IsOnline  bool          `json:"isOnline"`
	Location  *types.Point  `json:"location,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Eligible reports whether p can take a new delivery right now.
func (p Partner) Eligible() bool {
	return p.Status == PartnerApproved && p.IsActive && p.IsOnline
}

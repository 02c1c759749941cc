// README: Room naming and the event catalogue shared by publishers and listeners.
package notify

import (
	"strings"

	"streeteats/internal/types"
)

const (
	EventNewOrder               = "new-order"
	EventStatusUpdated          = "order-status-updated"
	EventDeliveryRequest        = "new-delivery-request"
	EventOrderCompleted         = "order-completed"
	EventOrderRated             = "order-rated"
	EventPaymentConfirmed       = "payment-confirmed"
	EventPaymentFailed          = "payment-failed"
	EventUPIPendingVerification = "upi-payment-pending-verification"
	EventUPIPaymentFailed       = "upi-payment-failed"
	EventRefundProcessed        = "refund-processed"
	EventPartnerLocation        = "delivery-location-updated"
)

const (
	prefixVendor   = "vendor-"
	prefixCustomer = "customer-"
	prefixDelivery = "delivery-"
)

func VendorRoom(id types.ID) string   { return prefixVendor + string(id) }
func CustomerRoom(id types.ID) string { return prefixCustomer + string(id) }
func DeliveryRoom(id types.ID) string { return prefixDelivery + string(id) }

// ParseRoom splits a room into its role ("vendor", "customer" or "delivery") and entity ID.
func ParseRoom(room string) (string, types.ID, bool) {
	for _, p := range []string{prefixVendor, prefixCustomer, prefixDelivery} {
		if id, ok := strings.CutPrefix(room, p); ok && id != "" {
			return strings.TrimSuffix(p, "-"), types.ID(id), true
		}
	}
	return "", "", false
}

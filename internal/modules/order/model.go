// README: Order aggregate, status enums and the transition tables.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"streeteats/internal/modules/pricing"
	"streeteats/internal/types"
)

type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusAccepted       Status = "accepted"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusPickedUp       Status = "picked_up"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

var allStatuses = []Status{
	StatusPlaced, StatusConfirmed, StatusAccepted, StatusPreparing, StatusReady,
	StatusReadyForPickup, StatusPickedUp, StatusOutForDelivery, StatusDelivered,
	StatusCancelled, StatusRefunded,
}

func ParseStatus(v string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == v {
			return s, true
		}
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

type OrderType string

const (
	TypeDelivery OrderType = "delivery"
	TypePickup   OrderType = "pickup"
	TypeDineIn   OrderType = "dine_in"
)

func (t OrderType) Valid() bool {
	return t == TypeDelivery || t == TypePickup || t == TypeDineIn
}

// ChargesDelivery reports whether a delivery fee applies and a courier is needed.
func (t OrderType) ChargesDelivery() bool {
	return t == TypeDelivery
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleDelivery Role = "delivery"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func ParseRole(v string) (Role, bool) {
	switch r := Role(v); r {
	case RoleCustomer, RoleVendor, RoleDelivery, RoleAdmin:
		return r, true
	}
	return "", false
}

// Actor is the caller driving an operation. ID is the customer, vendor or partner
// document ID for the matching role; it is empty for the system.
type Actor struct {
	Role Role
	ID   types.ID
}

var SystemActor = Actor{Role: RoleSystem}

type PaymentMethod string

const (
	PayCOD      PaymentMethod = "cod"
	PayOnline   PaymentMethod = "online"
	PayAtPickup PaymentMethod = "pickup_pay"
	PayUPI      PaymentMethod = "upi"
	PayCard     PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCOD, PayOnline, PayAtPickup, PayUPI, PayCard:
		return true
	}
	return false
}

// SettledOnHandover reports whether the money is collected in person at delivery or pickup.
func (m PaymentMethod) SettledOnHandover() bool {
	return m == PayCOD || m == PayAtPickup
}

type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentFailed              PaymentStatus = "failed"
	PaymentRefunded            PaymentStatus = "refunded"
)

var allowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:             {PaymentCompleted, PaymentFailed, PaymentPendingVerification},
	PaymentPendingVerification: {PaymentCompleted, PaymentFailed},
	PaymentCompleted:           {PaymentRefunded},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range allowedPaymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Customization struct {
	Name            string          `json:"name"`
	SelectedOption  string          `json:"selectedOption"`
	AdditionalPrice decimal.Decimal `json:"additionalPrice"`
}

// Item is a snapshot of a menu item at order time.
type Item struct {
	MenuItemID     types.ID        `json:"menuItemId"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	Customizations []Customization `json:"customizations,omitempty"`
}

type Address struct {
	Label        string      `json:"label,omitempty"`
	Name         string      `json:"name,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Street       string      `json:"street"`
	City         string      `json:"city"`
	State        string      `json:"state,omitempty"`
	Pincode      string      `json:"pincode"`
	Landmark     string      `json:"landmark,omitempty"`
	Location     types.Point `json:"location"`
	Instructions string      `json:"instructions,omitempty"`
}

type StatusEntry struct {
	Status    Status    `json:"status"`
	At        time.Time `json:"timestamp"`
	ActorRole Role      `json:"actorRole"`
	ActorID   types.ID  `json:"actorId,omitempty"`
	Note      string    `json:"note,omitempty"`
}

type Payment struct {
	Method         PaymentMethod   `json:"method"`
	Provider       string          `json:"provider,omitempty"`
	Status         PaymentStatus   `json:"status"`
	GatewayOrderID string          `json:"gatewayOrderId,omitempty"`
	TransactionID  string          `json:"transactionId,omitempty"`
	PaidAmount     decimal.Decimal `json:"paidAmount"`
	RefundAmount   decimal.Decimal `json:"refundAmount"`
	RefundID       string          `json:"refundId,omitempty"`
	RefundReason   string          `json:"refundReason,omitempty"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	RefundedAt     *time.Time      `json:"refundedAt,omitempty"`
}

type Timing struct {
	PlacedAt            time.Time  `json:"placedAt"`
	ConfirmedAt         *time.Time `json:"confirmedAt,omitempty"`
	AcceptedAt          *time.Time `json:"acceptedAt,omitempty"`
	PreparingAt         *time.Time `json:"preparingAt,omitempty"`
	ReadyAt             *time.Time `json:"readyAt,omitempty"`
	AssignedAt          *time.Time `json:"assignedAt,omitempty"`
	PickedUpAt          *time.Time `json:"pickedUpAt,omitempty"`
	OutForDeliveryAt    *time.Time `json:"outForDeliveryAt,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt         *time.Time `json:"cancelledAt,omitempty"`
	RefundedAt          *time.Time `json:"refundedAt,omitempty"`
	EstimatedDeliveryAt time.Time  `json:"estimatedDeliveryAt"`
}

// stamp records when the order entered s. Existing stamps are kept.
func (t *Timing) stamp(s Status, at time.Time) {
	var slot **time.Time
	switch s {
	case StatusConfirmed:
		slot = &t.ConfirmedAt
	case StatusAccepted:
		slot = &t.AcceptedAt
	case StatusPreparing:
		slot = &t.PreparingAt
	case StatusReady:
		slot = &t.ReadyAt
	case StatusPickedUp:
		slot = &t.PickedUpAt
	case StatusOutForDelivery:
		slot = &t.OutForDeliveryAt
	case StatusDelivered:
		slot = &t.DeliveredAt
	case StatusCancelled:
		slot = &t.CancelledAt
	case StatusRefunded:
		slot = &t.RefundedAt
	default:
		return
	}
	if *slot == nil {
		v := at
		*slot = &v
	}
}

type Rating struct {
	Food     int       `json:"food"`
	Delivery int       `json:"delivery,omitempty"`
	Overall  int       `json:"overall"`
	Review   string    `json:"review,omitempty"`
	RatedAt  time.Time `json:"ratedAt"`
}

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

type Cancellation struct {
	Reason       string          `json:"reason"`
	CancelledBy  Role            `json:"cancelledBy"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	RefundStatus RefundStatus    `json:"refundStatus"`
}

type Order struct {
	ID                  types.ID          `json:"id"`
	OrderNumber         string            `json:"orderNumber"`
	CustomerID          types.ID          `json:"customerId"`
	VendorID            types.ID          `json:"vendorId"`
	DeliveryPartnerID   *types.ID         `json:"deliveryPartnerId,omitempty"`
	OrderType           OrderType         `json:"orderType"`
	Items               []Item            `json:"items"`
	Pricing             pricing.Breakdown `json:"pricing"`
	DeliveryAddress     *Address          `json:"deliveryAddress,omitempty"`
	PickupLocation      types.Point       `json:"pickupLocation"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
	Status              Status            `json:"status"`
	StatusHistory       []StatusEntry     `json:"statusHistory"`
	Version             int               `json:"version"`
	Payment             Payment           `json:"payment"`
	Timing              Timing            `json:"timing"`
	Rating              *Rating           `json:"rating,omitempty"`
	Cancellation        *Cancellation     `json:"cancellation,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// IsParty reports whether a is one of the order's parties. Admin and system are always parties.
func (o *Order) IsParty(a Actor) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleCustomer:
		return a.ID != "" && a.ID == o.CustomerID
	case RoleVendor:
		return a.ID != "" && a.ID == o.VendorID
	case RoleDelivery:
		return o.DeliveryPartnerID != nil && a.ID == *o.DeliveryPartnerID
	}
	return false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	c := *o
	if o.DeliveryPartnerID != nil {
		v := *o.DeliveryPartnerID
		c.DeliveryPartnerID = &v
	}
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it
		c.Items[i].Customizations = append([]Customization(nil), it.Customizations...)
	}
	if o.DeliveryAddress != nil {
		v := *o.DeliveryAddress
		c.DeliveryAddress = &v
	}
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	c.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	c.Payment.RefundedAt = cloneTime(o.Payment.RefundedAt)
	t := &c.Timing
	t.ConfirmedAt = cloneTime(t.ConfirmedAt)
	t.AcceptedAt = cloneTime(t.AcceptedAt)
	t.PreparingAt = cloneTime(t.PreparingAt)
	t.ReadyAt = cloneTime(t.ReadyAt)
	t.AssignedAt = cloneTime(t.AssignedAt)
	t.PickedUpAt = cloneTime(t.PickedUpAt)
	t.OutForDeliveryAt = cloneTime(t.OutForDeliveryAt)
	t.DeliveredAt = cloneTime(t.DeliveredAt)
	t.CancelledAt = cloneTime(t.CancelledAt)
	t.RefundedAt = cloneTime(t.RefundedAt)
	if o.Rating != nil {
		v := *o.Rating
		c.Rating = &v
	}
	if o.Cancellation != nil {
		v := *o.Cancellation
		c.Cancellation = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// deliveryTransitions is the delivery order flow (diagram) as code.
var deliveryTransitions = map[Status][]Status{
	StatusPlaced:         {StatusConfirmed, StatusAccepted, StatusCancelled, StatusRefunded},
	StatusConfirmed:      {StatusAccepted, StatusCancelled, StatusRefunded},
	StatusAccepted:       {StatusPreparing, StatusCancelled, StatusRefunded},
	StatusPreparing:      {StatusReady, StatusCancelled, StatusRefunded},
	StatusReady:          {StatusReadyForPickup, StatusPickedUp, StatusCancelled, StatusRefunded},
	StatusReadyForPickup: {StatusPickedUp, StatusCancelled, StatusRefunded},
	StatusPickedUp:       {StatusOutForDelivery, StatusDelivered, StatusRefunded},
	StatusOutForDelivery: {StatusDelivered, StatusRefunded},
}

// counterTransitions covers pickup and dine-in orders: picked_up is the customer
// collecting the food and there is no courier leg.
var counterTransitions = map[Status][]Status{
	StatusPlaced:         {StatusConfirmed, StatusAccepted, StatusCancelled, StatusRefunded},
	StatusConfirmed:      {StatusAccepted, StatusCancelled, StatusRefunded},
	StatusAccepted:       {StatusPreparing, StatusCancelled, StatusRefunded},
	StatusPreparing:      {StatusReady, StatusCancelled, StatusRefunded},
	StatusReady:          {StatusReadyForPickup, StatusPickedUp, StatusCancelled, StatusRefunded},
	StatusReadyForPickup: {StatusPickedUp, StatusCancelled, StatusRefunded},
	StatusPickedUp:       {StatusDelivered, StatusRefunded},
}

func CanTransition(t OrderType, from, to Status) bool {
	table := deliveryTransitions
	if !t.ChargesDelivery() {
		table = counterTransitions
	}
	return contains(table[from], to)
}

// vendorTargets are the statuses an owning vendor may drive on any order type.
var vendorTargets = []Status{
	StatusConfirmed, StatusAccepted, StatusPreparing, StatusReady,
	StatusReadyForPickup, StatusCancelled, StatusRefunded,
}

var partnerTargets = []Status{StatusPickedUp, StatusOutForDelivery, StatusDelivered}

// mayDrive reports whether a (already known to be a party) may move o into to.
func mayDrive(a Actor, o *Order, to Status) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleSystem:
		return to == StatusCancelled || to == StatusRefunded
	case RoleVendor:
		if contains(vendorTargets, to) {
			return true
		}
		return !o.OrderType.ChargesDelivery() && (to == StatusPickedUp || to == StatusDelivered)
	case RoleDelivery:
		return o.OrderType.ChargesDelivery() && contains(partnerTargets, to)
	case RoleCustomer:
		return to == StatusCancelled && (o.Status == StatusPlaced || o.Status == StatusConfirmed)
	}
	return false
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var statusMessages = map[Status]string{
	StatusPlaced:         "Order placed successfully",
	StatusConfirmed:      "Order confirmed by vendor",
	StatusAccepted:       "Order accepted by vendor",
	StatusPreparing:      "Your order is being prepared",
	StatusReady:          "Order is ready for pickup",
	StatusReadyForPickup: "Order is waiting at the counter",
	StatusPickedUp:       "Order picked up by delivery partner",
	StatusOutForDelivery: "Order is out for delivery",
	StatusDelivered:      "Order delivered successfully",
	StatusCancelled:      "Order has been cancelled",
	StatusRefunded:       "Order has been refunded",
}

var counterMessages = map[Status]string{
	StatusReady:          "Your order is ready to collect",
	StatusReadyForPickup: "Your order is ready to collect at the counter",
	StatusPickedUp:       "Order collected",
	StatusDelivered:      "Order completed",
}

// StatusMessage is the customer-facing text for s on an order of type t.
func StatusMessage(s Status, t OrderType) string {
	if !t.ChargesDelivery() {
		if m, ok := counterMessages[s]; ok {
			return m
		}
	}
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Order status updated"
}

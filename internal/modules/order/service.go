// README: Order service implements placement, the status state machine and its side effects.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/pricing"
	"streeteats/internal/types"
)

// Notifier is the fire-and-forget event sink. Publish never reports failure.
type Notifier interface {
	Publish(ctx context.Context, room, event string, payload any)
}

// PartnerFinder picks a delivery partner for an order entering ready.
// found=false with a nil error means nobody is available.
type PartnerFinder interface {
	FindPartnerFor(ctx context.Context, o *Order) (types.ID, bool, error)
}

type StatsRecorder interface {
	OrderPlaced(ctx context.Context, vendorID types.ID) error
	OrderDelivered(ctx context.Context, vendorID types.ID, partnerID *types.ID, total decimal.Decimal) error
	RateVendor(ctx context.Context, vendorID types.ID, score int) error
	RatePartner(ctx context.Context, partnerID types.ID, score int) error
}

// Couriers confirms that a delivery partner may take a new order. An unknown
// partner is reported as ErrNotFound.
type Couriers interface {
	Eligible(ctx context.Context, partnerID types.ID) (bool, error)
}

// Messenger sends customer mail about an order. Errors are logged by the caller
// and never fail the operation that triggered them.
type Messenger interface {
	OrderConfirmed(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order) error
}

type ETAEstimator interface {
	TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Config struct {
	// DefaultETA is used when no route estimate is available.
	DefaultETA     time.Duration
	NumberAttempts int
	ReaperInterval time.Duration
	ReaperDeadline time.Duration
	ReaperBatch    int
}

func DefaultConfig() Config {
	return Config{
		DefaultETA:     45 * time.Minute,
		NumberAttempts: 5,
		ReaperInterval: time.Minute,
		ReaperDeadline: 10 * time.Minute,
		ReaperBatch:    100,
	}
}

type Deps struct {
	Store    Store
	Catalog  Catalog
	Pricing  *pricing.Service
	Partners PartnerFinder
	Couriers Couriers
	Notifier Notifier
	Mail     Messenger
	Stats    StatsRecorder
	ETA      ETAEstimator
	Logger   zerolog.Logger
	Clock    func() time.Time
}

type Service struct {
	store    Store
	catalog  Catalog
	pricing  *pricing.Service
	partners PartnerFinder
	couriers Couriers
	notifier Notifier
	mail     Messenger
	stats    StatsRecorder
	eta      ETAEstimator
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	s := &Service{
		store:    d.Store,
		catalog:  d.Catalog,
		pricing:  d.Pricing,
		partners: d.Partners,
		couriers: d.Couriers,
		notifier: d.Notifier,
		mail:     d.Mail,
		stats:    d.Stats,
		eta:      d.ETA,
		cfg:      cfg,
		log:      d.Logger.With().Str("module", "order").Logger(),
		now:      d.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = discard{}
	}
	if s.mail == nil {
		s.mail = discard{}
	}
	def := DefaultConfig()
	if s.cfg.NumberAttempts <= 0 {
		s.cfg.NumberAttempts = def.NumberAttempts
	}
	if s.cfg.DefaultETA <= 0 {
		s.cfg.DefaultETA = def.DefaultETA
	}
	if s.cfg.ReaperInterval <= 0 {
		s.cfg.ReaperInterval = def.ReaperInterval
	}
	if s.cfg.ReaperDeadline <= 0 {
		s.cfg.ReaperDeadline = def.ReaperDeadline
	}
	if s.cfg.ReaperBatch <= 0 {
		s.cfg.ReaperBatch = def.ReaperBatch
	}
	return s
}

type discard struct{}

func (discard) Publish(context.Context, string, string, any) {}
func (discard) OrderConfirmed(context.Context, *Order) error { return nil }
func (discard) StatusChanged(context.Context, *Order) error  { return nil }

// ---------------------------------------------------------------------------
// Placement
// ---------------------------------------------------------------------------

type ItemRequest struct {
	MenuItemID     types.ID
	Quantity       int
	Customizations []Customization
}

type PlaceCommand struct {
	CustomerID          types.ID
	VendorID            types.ID
	Items               []ItemRequest
	OrderType           OrderType
	DeliveryAddress     *Address
	PaymentMethod       PaymentMethod
	SpecialInstructions string
}

func (s *Service) Place(ctx context.Context, cmd PlaceCommand) (*Order, error) {
	if cmd.OrderType == "" {
		cmd.OrderType = TypeDelivery
	}
	if err := validatePlace(cmd); err != nil {
		return nil, err
	}

	vendor, err := s.catalog.Vendor(ctx, cmd.VendorID)
	if errors.Is(err, ErrVendorUnavailable) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load vendor: %w", err)
	}
	if !vendor.Active {
		return nil, fmt.Errorf("%w: %v", ErrValidation, ErrVendorUnavailable)
	}

	items := make([]Item, 0, len(cmd.Items))
	lines := make([]pricing.Line, 0, len(cmd.Items))
	for _, req := range cmd.Items {
		mi, ok := vendor.Menu[req.MenuItemID]
		if !ok || !mi.Available {
			return nil, fmt.Errorf("%w: item %s is not available", ErrValidation, req.MenuItemID)
		}
		extras := decimal.Zero
		for _, c := range req.Customizations {
			if c.AdditionalPrice.IsNegative() {
				return nil, fmt.Errorf("%w: customization %q has a negative price", ErrValidation, c.Name)
			}
			extras = extras.Add(c.AdditionalPrice)
		}
		items = append(items, Item{
			MenuItemID:     mi.ID,
			Name:           mi.Name,
			Price:          mi.Price,
			Quantity:       req.Quantity,
			Customizations: req.Customizations,
		})
		lines = append(lines, pricing.Line{UnitPrice: mi.Price, Extras: extras, Quantity: req.Quantity})
	}

	breakdown, err := s.pricing.Quote(lines, cmd.OrderType.ChargesDelivery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.now()
	o := &Order{
		ID:                  types.NewID(),
		CustomerID:          cmd.CustomerID,
		VendorID:            cmd.VendorID,
		OrderType:           cmd.OrderType,
		Items:               items,
		Pricing:             breakdown,
		DeliveryAddress:     cmd.DeliveryAddress,
		PickupLocation:      vendor.Location,
		SpecialInstructions: cmd.SpecialInstructions,
		Status:              StatusPlaced,
		StatusHistory: []StatusEntry{{
			Status:    StatusPlaced,
			At:        now,
			ActorRole: RoleCustomer,
			ActorID:   cmd.CustomerID,
		}},
		Payment: Payment{
			Method: cmd.PaymentMethod,
			Status: PaymentPending,
		},
		Timing: Timing{
			PlacedAt:            now,
			EstimatedDeliveryAt: now.Add(s.estimate(ctx, vendor, cmd)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !cmd.PaymentMethod.SettledOnHandover() {
		o.Payment.Provider = "razorpay"
	}

	for attempt := 1; ; attempt++ {
		o.OrderNumber = newOrderNumber(now)
		err = s.store.Insert(ctx, o)
		if !errors.Is(err, ErrDuplicateNumber) || attempt >= s.cfg.NumberAttempts {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if s.stats != nil {
		if err := s.stats.OrderPlaced(ctx, o.VendorID); err != nil {
			s.log.Error().Err(err).Str("vendor_id", string(o.VendorID)).Msg("record placed order")
		}
	}
	s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventNewOrder, map[string]any{
		"orderId":         o.ID,
		"orderNumber":     o.OrderNumber,
		"customerId":      o.CustomerID,
		"orderType":       o.OrderType,
		"items":           o.Items,
		"total":           o.Pricing.Total,
		"deliveryAddress": o.DeliveryAddress,
	})
	if err := s.mail.OrderConfirmed(ctx, o); err != nil {
		s.log.Warn().Err(err).Str("order_id", string(o.ID)).Msg("order confirmation mail")
	}
	s.log.Info().Str("order_id", string(o.ID)).Str("order_number", o.OrderNumber).Msg("order placed")
	return o, nil
}

func validatePlace(cmd PlaceCommand) error {
	switch {
	case cmd.CustomerID == "":
		return fmt.Errorf("%w: customer is required", ErrValidation)
	case cmd.VendorID == "":
		return fmt.Errorf("%w: vendorId is required", ErrValidation)
	case len(cmd.Items) == 0:
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	case !cmd.OrderType.Valid():
		return fmt.Errorf("%w: unknown order type %q", ErrValidation, cmd.OrderType)
	case !cmd.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, cmd.PaymentMethod)
	case cmd.OrderType == TypeDelivery && cmd.DeliveryAddress == nil:
		return fmt.Errorf("%w: delivery address is required", ErrValidation)
	}
	for _, it := range cmd.Items {
		if it.MenuItemID == "" || it.Quantity < 1 {
			return fmt.Errorf("%w: each item needs a menuItemId and quantity >= 1", ErrValidation)
		}
	}
	return nil
}

// estimate returns prep time plus courier travel time, or the configured default.
func (s *Service) estimate(ctx context.Context, v *Vendor, cmd PlaceCommand) time.Duration {
	if s.eta == nil || cmd.DeliveryAddress == nil || v.Location.IsZero() || cmd.DeliveryAddress.Location.IsZero() {
		return s.cfg.DefaultETA
	}
	travel, err := s.eta.TravelTime(ctx, v.Location, cmd.DeliveryAddress.Location)
	if err != nil {
		s.log.Warn().Err(err).Msg("eta lookup failed, using default")
		return s.cfg.DefaultETA
	}
	return v.PrepTime + travel
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// FindByGatewayOrder resolves the order a payment gateway order was created for.
func (s *Service) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	if gatewayOrderID == "" {
		return nil, ErrNotFound
	}
	return s.store.FindByGatewayOrder(ctx, gatewayOrderID)
}

// View returns the order when actor is one of its parties.
func (s *Service) View(ctx context.Context, id types.ID, actor Actor) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actor) {
		return nil, ErrAccessDenied
	}
	return o, nil
}

type ListQuery struct {
	Status string
	Page   int
	Limit  int
}

type Page struct {
	Orders []*Order `json:"orders"`
	Page   int      `json:"current"`
	Pages  int      `json:"pages"`
	Total  int      `json:"total"`
}

// List returns the actor's orders newest first.
func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) (*Page, error) {
	f := ListFilter{}
	switch actor.Role {
	case RoleCustomer:
		f.CustomerID = actor.ID
	case RoleVendor:
		f.VendorID = actor.ID
	case RoleDelivery:
		f.PartnerID = actor.ID
	case RoleAdmin:
	default:
		return nil, ErrAccessDenied
	}
	if actor.Role != RoleAdmin && actor.ID == "" {
		return nil, ErrAccessDenied
	}
	if q.Status != "" && q.Status != "all" {
		st, ok := ParseStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
		}
		f.Statuses = []Status{st}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
		if actor.Role == RoleVendor {
			q.Limit = 20
		}
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	f.Limit = q.Limit
	f.Offset = (q.Page - 1) * q.Limit

	orders, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{
		Orders: orders,
		Page:   q.Page,
		Pages:  (total + q.Limit - 1) / q.Limit,
		Total:  total,
	}, nil
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

type TransitionCommand struct {
	OrderID types.ID
	To      Status
	Actor   Actor
	// ExpectedFrom, when set, must equal the stored status or the call fails with ErrStaleState.
	ExpectedFrom Status
	Reason       string
}

type EffectKind string

const (
	EffectPartnerAssigned EffectKind = "partner_assigned"
	EffectStatsRecorded   EffectKind = "stats_recorded"
	EffectPaymentSettled  EffectKind = "payment_settled"
	EffectNotified        EffectKind = "notified"
)

type Effect struct {
	Kind   EffectKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	Event  string     `json:"event,omitempty"`
}

type TransitionResult struct {
	Order   *Order   `json:"order"`
	From    Status   `json:"from"`
	Effects []Effect `json:"effects"`
}

func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*TransitionResult, error) {
	if _, ok := ParseStatus(string(cmd.To)); !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.To)
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if cmd.ExpectedFrom != "" && cmd.ExpectedFrom != o.Status {
		return nil, ErrStaleState
	}
	if !o.IsParty(cmd.Actor) {
		return nil, ErrAccessDenied
	}
	if !CanTransition(o.OrderType, o.Status, cmd.To) {
		return nil, ErrInvalidTransition
	}
	if !mayDrive(cmd.Actor, o, cmd.To) {
		return nil, ErrAccessDenied
	}

	var assign *types.ID
	if cmd.To == StatusReady && o.OrderType.ChargesDelivery() && o.DeliveryPartnerID == nil && s.partners != nil {
		id, found, err := s.partners.FindPartnerFor(ctx, o)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("order_id", string(o.ID)).Msg("partner lookup failed; order left unassigned")
		case found:
			assign = &id
		}
	}
	return s.commit(ctx, o, cmd.To, cmd.Actor, cmd.Reason, assign)
}

// AcceptDelivery lets a partner claim a ready order and mark it picked up in one step.
func (s *Service) AcceptDelivery(ctx context.Context, orderID, partnerID types.ID) (*TransitionResult, error) {
	if partnerID == "" {
		return nil, ErrAccessDenied
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if !o.OrderType.ChargesDelivery() {
		return nil, ErrInvalidTransition
	}
	if o.Status != StatusReady && o.Status != StatusReadyForPickup {
		return nil, ErrInvalidTransition
	}
	if o.DeliveryPartnerID != nil && *o.DeliveryPartnerID != partnerID {
		return nil, ErrAlreadyAssigned
	}
	if s.couriers != nil {
		ok, err := s.couriers.Eligible(ctx, partnerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: partner is not approved, active and online", ErrAccessDenied)
		}
	}
	var assign *types.ID
	if o.DeliveryPartnerID == nil {
		assign = &partnerID
	}
	return s.commit(ctx, o, StatusPickedUp, Actor{Role: RoleDelivery, ID: partnerID}, "", assign)
}

// commit writes o moved to `to` under the (status, version) guard and then runs
// the post-write side effects. Nothing observable happens when the guard fails.
func (s *Service) commit(ctx context.Context, o *Order, to Status, actor Actor, note string, assign *types.ID) (*TransitionResult, error) {
	now := s.now()
	from := o.Status
	next := o.Clone()
	next.Status = to
	next.Version = o.Version + 1
	next.UpdatedAt = now
	next.Timing.stamp(to, now)
	next.StatusHistory = append(next.StatusHistory, StatusEntry{
		Status:    to,
		At:        now,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Note:      note,
	})

	var effects []Effect
	if assign != nil {
		p := *assign
		at := now
		next.DeliveryPartnerID = &p
		next.Timing.AssignedAt = &at
		effects = append(effects, Effect{Kind: EffectPartnerAssigned, Target: string(p)})
	}

	// cash changes hands when the food does: at the door, or at the counter for pickup and dine-in
	handover := to == StatusDelivered || (to == StatusPickedUp && !next.OrderType.ChargesDelivery())
	if handover && next.Payment.Method.SettledOnHandover() && next.Payment.Status == PaymentPending {
		paidAt := now
		next.Payment.Status = PaymentCompleted
		next.Payment.PaidAmount = next.Pricing.Total
		next.Payment.PaidAt = &paidAt
		effects = append(effects, Effect{Kind: EffectPaymentSettled, Target: string(next.Payment.Method)})
	}
	if to == StatusCancelled {
		next.Cancellation = newCancellation(next, actor, note)
	}

	ok, err := s.store.UpdateStatus(ctx, next, from, o.Version)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return nil, ErrStaleState
	}

	if to == StatusDelivered && s.stats != nil {
		if err := s.stats.OrderDelivered(ctx, next.VendorID, next.DeliveryPartnerID, next.Pricing.Total); err != nil {
			s.log.Error().Err(err).Str("order_id", string(next.ID)).Msg("record delivery stats")
		} else {
			effects = append(effects, Effect{Kind: EffectStatsRecorded, Target: string(next.VendorID)})
		}
	}
	// A partner claiming the order themselves needs no delivery request.
	announce := assign != nil && (actor.Role != RoleDelivery || actor.ID != *assign)
	effects = append(effects, s.fanOut(ctx, from, next, announce)...)
	if err := s.mail.StatusChanged(ctx, next); err != nil {
		s.log.Warn().Err(err).Str("order_id", string(next.ID)).Msg("status mail")
	}

	s.log.Info().
		Str("order_id", string(next.ID)).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", string(actor.Role)).
		Msg("order transitioned")
	return &TransitionResult{Order: next, From: from, Effects: effects}, nil
}

func newCancellation(o *Order, actor Actor, reason string) *Cancellation {
	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", actor.Role)
	}
	c := &Cancellation{
		Reason:       reason,
		CancelledBy:  actor.Role,
		RefundAmount: decimal.Zero,
		RefundStatus: RefundNone,
	}
	if o.Payment.Status == PaymentCompleted {
		c.RefundAmount = o.Pricing.Total
		c.RefundStatus = RefundPending
	}
	return c
}

func (s *Service) fanOut(ctx context.Context, from Status, o *Order, announce bool) []Effect {
	var effects []Effect
	publish := func(room, event string, payload any) {
		s.notifier.Publish(ctx, room, event, payload)
		effects = append(effects, Effect{Kind: EffectNotified, Target: room, Event: event})
	}

	if announce {
		publish(notify.DeliveryRoom(*o.DeliveryPartnerID), notify.EventDeliveryRequest, map[string]any{
			"orderId":         o.ID,
			"orderNumber":     o.OrderNumber,
			"vendorId":        o.VendorID,
			"customerId":      o.CustomerID,
			"pickupLocation":  o.PickupLocation,
			"deliveryAddress": o.DeliveryAddress,
			"total":           o.Pricing.Total,
		})
	}

	payload := map[string]any{
		"orderId":        o.ID,
		"orderNumber":    o.OrderNumber,
		"status":         o.Status,
		"previousStatus": from,
		"message":        StatusMessage(o.Status, o.OrderType),
	}
	if o.Cancellation != nil {
		payload["cancellation"] = o.Cancellation
	}
	publish(notify.VendorRoom(o.VendorID), notify.EventStatusUpdated, payload)
	publish(notify.CustomerRoom(o.CustomerID), notify.EventStatusUpdated, payload)
	if o.DeliveryPartnerID != nil {
		publish(notify.DeliveryRoom(*o.DeliveryPartnerID), notify.EventStatusUpdated, payload)
	}
	if o.Status == StatusDelivered || o.Status == StatusPickedUp {
		publish(notify.VendorRoom(o.VendorID), notify.EventOrderCompleted, map[string]any{
			"orderId":     o.ID,
			"orderNumber": o.OrderNumber,
			"status":      o.Status,
			"total":       o.Pricing.Total,
		})
	}
	return effects
}

// ---------------------------------------------------------------------------
// Assignment retry
// ---------------------------------------------------------------------------

// ActiveDeliveries returns the orders partnerID is currently carrying.
func (s *Service) ActiveDeliveries(ctx context.Context, partnerID types.ID) ([]*Order, error) {
	orders, _, err := s.store.List(ctx, ListFilter{
		PartnerID: partnerID,
		Statuses:  []Status{StatusPickedUp, StatusOutForDelivery},
		Limit:     100,
	})
	return orders, err
}

// UnassignedReady returns delivery orders waiting at the counter without a partner.
func (s *Service) UnassignedReady(ctx context.Context, limit int) ([]*Order, error) {
	return s.store.FindUnassignedReady(ctx, limit)
}

// AssignPartner attaches partnerID to a ready or ready_for_pickup delivery order
// that still has no partner.
func (s *Service) AssignPartner(ctx context.Context, orderID, partnerID types.ID) (*Order, error) {
	ok, err := s.store.AssignPartner(ctx, orderID, partnerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("assign partner: %w", err)
	}
	if !ok {
		return nil, ErrStaleState
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.fanOutAssignment(ctx, o)
	return o, nil
}

func (s *Service) fanOutAssignment(ctx context.Context, o *Order) {
	s.notifier.Publish(ctx, notify.DeliveryRoom(*o.DeliveryPartnerID), notify.EventDeliveryRequest, map[string]any{
		"orderId":         o.ID,
		"orderNumber":     o.OrderNumber,
		"vendorId":        o.VendorID,
		"customerId":      o.CustomerID,
		"pickupLocation":  o.PickupLocation,
		"deliveryAddress": o.DeliveryAddress,
		"total":           o.Pricing.Total,
	})
	s.notifier.Publish(ctx, notify.CustomerRoom(o.CustomerID), notify.EventStatusUpdated, map[string]any{
		"orderId":           o.ID,
		"status":            o.Status,
		"deliveryPartnerId": o.DeliveryPartnerID,
		"message":           "Delivery partner assigned",
	})
}

// ---------------------------------------------------------------------------
// Rating
// ---------------------------------------------------------------------------

type RateCommand struct {
	OrderID    types.ID
	CustomerID types.ID
	Food       int
	Delivery   int
	Overall    int
	Review     string
}

func validScore(v int) bool { return v >= 1 && v <= 5 }

func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Order, error) {
	if !validScore(cmd.Food) || !validScore(cmd.Overall) || (cmd.Delivery != 0 && !validScore(cmd.Delivery)) {
		return nil, fmt.Errorf("%w: ratings must be between 1 and 5", ErrValidation)
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != cmd.CustomerID {
		return nil, ErrAccessDenied
	}
	if o.Status != StatusDelivered {
		return nil, ErrInvalidTransition
	}
	if o.Rating != nil {
		return nil, ErrAlreadyRated
	}

	r := Rating{
		Food:     cmd.Food,
		Delivery: cmd.Delivery,
		Overall:  cmd.Overall,
		Review:   cmd.Review,
		RatedAt:  s.now(),
	}
	ok, err := s.store.AttachRating(ctx, o.ID, r)
	if err != nil {
		return nil, fmt.Errorf("attach rating: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRated
	}
	o.Rating = &r
	o.Version++

	if s.stats != nil {
		if err := s.stats.RateVendor(ctx, o.VendorID, r.Overall); err != nil {
			s.log.Error().Err(err).Str("vendor_id", string(o.VendorID)).Msg("apply vendor rating")
		}
		if o.DeliveryPartnerID != nil && r.Delivery > 0 {
			if err := s.stats.RatePartner(ctx, *o.DeliveryPartnerID, r.Delivery); err != nil {
				s.log.Error().Err(err).Str("partner_id", string(*o.DeliveryPartnerID)).Msg("apply partner rating")
			}
		}
	}
	s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventOrderRated, map[string]any{
		"orderId": o.ID,
		"rating":  r,
	})
	return o, nil
}

// ---------------------------------------------------------------------------
// Payment sub-record
// ---------------------------------------------------------------------------

// UpdatePayment moves the payment sub-record to `to`, applying mutate to the copy
// that gets written. Repeating the current status without a mutation is a no-op;
// with one it rewrites the sub-record in place (e.g. recording a gateway order ID).
func (s *Service) UpdatePayment(ctx context.Context, id types.ID, to PaymentStatus, mutate func(p *Payment)) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Payment.Status
	if from == to && mutate == nil {
		return o, nil
	}
	if from != to && !CanTransitionPayment(from, to) {
		return nil, ErrInvalidTransition
	}
	p := o.Payment
	p.Status = to
	if mutate != nil {
		mutate(&p)
	}
	ok, err := s.store.UpdatePayment(ctx, id, from, p)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	if !ok {
		return nil, ErrStaleState
	}
	o.Payment = p
	o.Version++
	return o, nil
}

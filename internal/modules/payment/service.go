// README: Payment reconciler: gateway intents, checkout verification, webhooks, UPI confirmation and refunds.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

const Provider = "razorpay"

// ErrDisabled is returned by gateway-backed operations when no keys are configured.
var ErrDisabled = errors.New("payment gateway not configured")

// Orders is the slice of the order service the reconciler drives.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*order.Order, error)
	UpdatePayment(ctx context.Context, id types.ID, to order.PaymentStatus, mutate func(p *order.Payment)) (*order.Order, error)
	Transition(ctx context.Context, cmd order.TransitionCommand) (*order.TransitionResult, error)
}

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type Service struct {
	orders   Orders
	gateway  Gateway
	notifier order.Notifier
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the reconciler. gateway may be nil, in which case CreateIntent
// and Refund fail with ErrDisabled.
func NewService(orders Orders, gateway Gateway, notifier order.Notifier, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.With().Str("module", "payment").Logger(),
		now:      time.Now,
	}
}

type Intent struct {
	GatewayOrderID string `json:"orderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Key            string `json:"key"`
}

// CreateIntent opens a gateway order for the full order total and records its ID.
func (s *Service) CreateIntent(ctx context.Context, orderID types.ID, actor order.Actor) (*Intent, error) {
	if s.gateway == nil {
		return nil, ErrDisabled
	}
	o, err := s.customerOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status != order.PaymentPending {
		return nil, fmt.Errorf("%w: payment is %s", order.ErrInvalidTransition, o.Payment.Status)
	}

	gw, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   types.Paise(o.Pricing.Total),
		Currency: types.Currency,
		Receipt:  "order_" + string(o.ID),
		Notes: map[string]string{
			"orderId":    string(o.ID),
			"customerId": string(o.CustomerID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gateway order: %v", order.ErrUpstream, err)
	}

	if _, err := s.orders.UpdatePayment(ctx, o.ID, order.PaymentPending, func(p *order.Payment) {
		p.Provider = Provider
		p.GatewayOrderID = gw.ID
	}); err != nil {
		return nil, err
	}
	return &Intent{GatewayOrderID: gw.ID, Amount: gw.Amount, Currency: gw.Currency, Key: s.cfg.KeyID}, nil
}

type VerifyCommand struct {
	OrderID        types.ID
	GatewayOrderID string
	PaymentID      string
	Signature      string
	Actor          order.Actor
}

// Verify checks the checkout signature and marks the payment completed.
func (s *Service) Verify(ctx context.Context, cmd VerifyCommand) (*order.Order, error) {
	if cmd.GatewayOrderID == "" || cmd.PaymentID == "" {
		return nil, fmt.Errorf("%w: gateway order and payment ids are required", order.ErrValidation)
	}
	if !Verify(s.cfg.KeySecret, CheckoutMessage(cmd.GatewayOrderID, cmd.PaymentID), cmd.Signature) {
		return nil, ErrInvalidSignature
	}
	o, err := s.customerOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if o.Payment.GatewayOrderID != "" && o.Payment.GatewayOrderID != cmd.GatewayOrderID {
		return nil, ErrInvalidSignature
	}
	if o.Payment.Status == order.PaymentCompleted && o.Payment.TransactionID == cmd.PaymentID {
		return o, nil
	}
	updated, err := s.complete(ctx, o, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventPaymentConfirmed, map[string]any{
		"orderId":   o.ID,
		"paymentId": cmd.PaymentID,
		"amount":    o.Pricing.Total,
	})
	return updated, nil
}

func (s *Service) complete(ctx context.Context, o *order.Order, paymentID string) (*order.Order, error) {
	now := s.now()
	return s.orders.UpdatePayment(ctx, o.ID, order.PaymentCompleted, func(p *order.Payment) {
		p.Provider = Provider
		p.TransactionID = paymentID
		p.PaidAmount = o.Pricing.Total
		p.PaidAt = &now
	})
}

// ConfirmUPI records the customer's own claim about a UPI transfer. A confirmed
// transfer waits for the vendor to check it; a denied one fails the payment and
// cancels the order.
func (s *Service) ConfirmUPI(ctx context.Context, orderID types.ID, actor order.Actor, confirmed bool) (*order.Order, error) {
	o, err := s.customerOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"amount":      o.Pricing.Total,
	}
	if confirmed {
		updated, err := s.orders.UpdatePayment(ctx, o.ID, order.PaymentPendingVerification, nil)
		if err != nil {
			return nil, err
		}
		s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventUPIPendingVerification, payload)
		return updated, nil
	}

	updated, err := s.fail(ctx, o, "UPI payment not completed")
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventUPIPaymentFailed, payload)
	return updated, nil
}

// fail marks the payment failed and cancels the order if it is still open.
func (s *Service) fail(ctx context.Context, o *order.Order, reason string) (*order.Order, error) {
	updated, err := s.orders.UpdatePayment(ctx, o.ID, order.PaymentFailed, nil)
	if err != nil {
		return nil, err
	}
	if updated.Status.Terminal() {
		return updated, nil
	}
	res, err := s.orders.Transition(ctx, order.TransitionCommand{
		OrderID: o.ID,
		To:      order.StatusCancelled,
		Actor:   order.SystemActor,
		Reason:  reason,
	})
	switch {
	case err == nil:
		return res.Order, nil
	case errors.Is(err, order.ErrAlreadyTerminal), errors.Is(err, order.ErrInvalidTransition):
		s.log.Info().Str("order_id", string(o.ID)).Err(err).Msg("payment failed on an order that can no longer be cancelled")
		return s.orders.Get(ctx, o.ID)
	default:
		return nil, err
	}
}

type RefundResult struct {
	Order    *order.Order    `json:"order"`
	RefundID string          `json:"refundId"`
	Amount   decimal.Decimal `json:"amount"`
}

// Refund returns the full amount of a completed payment. Only the owning vendor or
// an admin may refund. An order that is still open moves to refunded.
func (s *Service) Refund(ctx context.Context, orderID types.ID, actor order.Actor, reason string) (*RefundResult, error) {
	if actor.Role != order.RoleVendor && actor.Role != order.RoleAdmin {
		return nil, order.ErrAccessDenied
	}
	if s.gateway == nil {
		return nil, ErrDisabled
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actor) {
		return nil, order.ErrAccessDenied
	}
	if o.Payment.Status != order.PaymentCompleted {
		return nil, fmt.Errorf("%w: cannot refund a %s payment", order.ErrInvalidTransition, o.Payment.Status)
	}
	if reason == "" {
		reason = "Order cancelled"
	}

	refund, err := s.gateway.Refund(ctx, o.Payment.TransactionID, RefundRequest{
		Amount: types.Paise(o.Pricing.Total),
		Notes:  map[string]string{"reason": reason, "orderId": string(o.ID)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gateway refund: %v", order.ErrUpstream, err)
	}

	now := s.now()
	updated, err := s.orders.UpdatePayment(ctx, o.ID, order.PaymentRefunded, func(p *order.Payment) {
		p.RefundID = refund.ID
		p.RefundAmount = o.Pricing.Total
		p.RefundReason = reason
		p.RefundedAt = &now
	})
	if err != nil {
		// the money has left; the record must be fixed by hand
		s.log.Error().Err(err).Str("order_id", string(o.ID)).Str("refund_id", refund.ID).Msg("refund issued but payment record not updated")
		return nil, err
	}
	if !updated.Status.Terminal() {
		res, err := s.orders.Transition(ctx, order.TransitionCommand{
			OrderID: o.ID,
			To:      order.StatusRefunded,
			Actor:   actor,
			Reason:  reason,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", string(o.ID)).Msg("refund recorded but order status not moved")
		} else {
			updated = res.Order
		}
	}

	s.notifier.Publish(ctx, notify.CustomerRoom(o.CustomerID), notify.EventRefundProcessed, map[string]any{
		"orderId":  o.ID,
		"refundId": refund.ID,
		"amount":   o.Pricing.Total,
		"reason":   reason,
	})
	return &RefundResult{Order: updated, RefundID: refund.ID, Amount: o.Pricing.Total}, nil
}

func (s *Service) customerOrder(ctx context.Context, id types.ID, actor order.Actor) (*order.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != order.RoleCustomer || actor.ID != o.CustomerID {
		return nil, order.ErrAccessDenied
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
	WebhookRefundProcessed = "refund.processed"
)

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment,omitempty"`
		Refund *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"refund,omitempty"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Amount  int64           `json:"amount"`
	Notes   json.RawMessage `json:"notes"`
}

// orderID reads notes.orderId. The gateway sends an empty array instead of an
// object when there are no notes.
func (e paymentEntity) orderID() types.ID {
	var notes map[string]string
	if err := json.Unmarshal(e.Notes, &notes); err != nil {
		return ""
	}
	return types.ID(notes["orderId"])
}

// HandleWebhook authenticates raw against the webhook secret and applies the event.
// Events for unknown orders are logged and acknowledged so the gateway stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte, signature string) error {
	if !Verify(s.cfg.WebhookSecret, raw, signature) {
		return ErrInvalidSignature
	}
	var ev webhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: webhook body: %v", order.ErrValidation, err)
	}
	log := s.log.With().Str("event", ev.Event).Logger()

	switch ev.Event {
	case WebhookPaymentCaptured, WebhookPaymentFailed:
		if ev.Payload.Payment == nil {
			return fmt.Errorf("%w: webhook without payment entity", order.ErrValidation)
		}
		entity := ev.Payload.Payment.Entity
		o, err := s.webhookOrder(ctx, entity)
		if errors.Is(err, order.ErrNotFound) {
			log.Warn().Str("order_id", string(entity.orderID())).Str("gateway_order_id", entity.OrderID).Msg("webhook for unknown order")
			return nil
		}
		if err != nil {
			return err
		}
		id := o.ID
		if ev.Event == WebhookPaymentCaptured {
			err = s.captured(ctx, o, entity.ID)
		} else {
			err = s.failed(ctx, o)
		}
		if err != nil {
			return err
		}
		log.Info().Str("order_id", string(id)).Str("payment_id", entity.ID).Msg("webhook applied")
	case WebhookRefundProcessed:
		if ev.Payload.Refund != nil {
			log.Info().Str("refund_id", ev.Payload.Refund.Entity.ID).Str("payment_id", ev.Payload.Refund.Entity.PaymentID).Msg("refund processed")
		}
	default:
		log.Debug().Msg("unhandled webhook event")
	}
	return nil
}

// webhookOrder prefers notes.orderId and falls back to the gateway order the
// payment belongs to.
func (s *Service) webhookOrder(ctx context.Context, e paymentEntity) (*order.Order, error) {
	if id := e.orderID(); id != "" {
		o, err := s.orders.Get(ctx, id)
		if !errors.Is(err, order.ErrNotFound) {
			return o, err
		}
	}
	return s.orders.FindByGatewayOrder(ctx, e.OrderID)
}

func (s *Service) captured(ctx context.Context, o *order.Order, paymentID string) error {
	switch o.Payment.Status {
	case order.PaymentCompleted, order.PaymentRefunded:
		return nil
	}
	_, err := s.complete(ctx, o, paymentID)
	if errors.Is(err, order.ErrInvalidTransition) {
		s.log.Warn().Str("order_id", string(o.ID)).Str("payment_status", string(o.Payment.Status)).Msg("capture for a payment that can no longer complete")
		return nil
	}
	if err != nil {
		return err
	}
	s.notifier.Publish(ctx, notify.VendorRoom(o.VendorID), notify.EventPaymentConfirmed, map[string]any{
		"orderId":   o.ID,
		"paymentId": paymentID,
		"amount":    o.Pricing.Total,
	})
	return nil
}

func (s *Service) failed(ctx context.Context, o *order.Order) error {
	switch o.Payment.Status {
	case order.PaymentFailed, order.PaymentCompleted, order.PaymentRefunded:
		return nil
	}
	if _, err := s.fail(ctx, o, "payment failed"); err != nil {
		return err
	}
	s.notifier.Publish(ctx, notify.CustomerRoom(o.CustomerID), notify.EventPaymentFailed, map[string]any{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
	})
	return nil
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streeteats/internal/modules/order"
	"streeteats/internal/modules/pricing"
	"streeteats/internal/types"
)

const (
	keySecret     = "key_secret"
	webhookSecret = "whsec"
)

var (
	customer = order.Actor{Role: order.RoleCustomer, ID: "c1"}
	vendor   = order.Actor{Role: order.RoleVendor, ID: "v1"}
)

type event struct {
	Room  string
	Event string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(_ context.Context, room, ev string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{room, ev})
}

func (r *recorder) count(room, ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Room == room && e.Event == ev {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu        sync.Mutex
	orders    []OrderRequest
	refunds   []string
	refundErr error
}

func (f *fakeGateway) CreateOrder(_ context.Context, req OrderRequest) (GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return GatewayOrder{ID: fmt.Sprintf("order_gw%d", len(f.orders)), Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (f *fakeGateway) Refund(_ context.Context, paymentID string, _ RefundRequest) (GatewayRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return GatewayRefund{}, f.refundErr
	}
	f.refunds = append(f.refunds, paymentID)
	return GatewayRefund{ID: "rfnd_1", Status: "processed"}, nil
}

type env struct {
	orders   *order.Service
	payments *Service
	gateway  *fakeGateway
	events   *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	catalog := order.NewMemoryCatalog()
	catalog.Put(order.Vendor{
		ID:       "v1",
		Active:   true,
		PrepTime: 15 * time.Minute,
		Menu: map[types.ID]order.MenuItem{
			"m1": {ID: "m1", Name: "Masala Dosa", Price: decimal.NewFromInt(100), Available: true},
		},
	})
	e := &env{gateway: &fakeGateway{}, events: &recorder{}}
	e.orders = order.NewService(order.Deps{
		Store:   order.NewMemoryStore(),
		Catalog: catalog,
		Pricing: pricing.NewService(pricing.Config{
			TaxRate:     decimal.RequireFromString("0.05"),
			DeliveryFee: decimal.NewFromInt(30),
		}),
		Notifier: e.events,
		Logger:   zerolog.Nop(),
	}, order.DefaultConfig())
	e.payments = NewService(e.orders, e.gateway, e.events, Config{
		KeyID:         "rzp_test",
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
	}, zerolog.Nop())
	return e
}

func (e *env) place(t *testing.T, method order.PaymentMethod) *order.Order {
	t.Helper()
	o, err := e.orders.Place(context.Background(), order.PlaceCommand{
		CustomerID:    "c1",
		VendorID:      "v1",
		Items:         []order.ItemRequest{{MenuItemID: "m1", Quantity: 2}},
		OrderType:     order.TypePickup,
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	return o
}

func (e *env) paid(t *testing.T) *order.Order {
	t.Helper()
	o := e.place(t, order.PayOnline)
	intent, err := e.payments.CreateIntent(context.Background(), o.ID, customer)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	o, err = e.payments.Verify(context.Background(), VerifyCommand{
		OrderID:        o.ID,
		GatewayOrderID: intent.GatewayOrderID,
		PaymentID:      "pay_1",
		Signature:      Sign(keySecret, CheckoutMessage(intent.GatewayOrderID, "pay_1")),
		Actor:          customer,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return o
}

func TestSignatureVerify(t *testing.T) {
	msg := CheckoutMessage("order_1", "pay_1")
	if string(msg) != "order_1|pay_1" {
		t.Fatalf("unexpected checkout message %q", msg)
	}
	sig := Sign("secret", msg)
	if len(sig) != 64 {
		t.Fatalf("expected hex sha256, got %q", sig)
	}
	if !Verify("secret", msg, sig) {
		t.Fatal("valid signature rejected")
	}
	for name, tc := range map[string]struct {
		secret, sig string
		msg         []byte
	}{
		"wrong secret":  {"other", sig, msg},
		"tampered body": {"secret", sig, []byte("order_1|pay_2")},
		"not hex":       {"secret", "zz", msg},
		"empty":         {"secret", "", msg},
		"no secret":     {"", Sign("", msg), msg},
	} {
		if Verify(tc.secret, tc.msg, tc.sig) {
			t.Errorf("%s: signature accepted", name)
		}
	}
}

func TestRazorpayGateway(t *testing.T) {
	var gotAuth bool
	var gotBody OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "rzp_test" && pass == keySecret
		switch r.URL.Path {
		case "/orders":
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
			_, _ = w.Write([]byte(`{"id":"order_abc","amount":21000,"currency":"INR","status":"created"}`))
		case "/payments/pay_1/refund":
			_, _ = w.Write([]byte(`{"id":"rfnd_abc","amount":21000,"status":"processed"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		}
	}))
	defer srv.Close()

	gw := NewRazorpayGateway(srv.URL+"/", "rzp_test", keySecret)
	ctx := context.Background()

	o, err := gw.CreateOrder(ctx, OrderRequest{Amount: 21000, Currency: "INR", Receipt: "order_1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !gotAuth || o.ID != "order_abc" || gotBody.Amount != 21000 || gotBody.Receipt != "order_1" {
		t.Fatalf("unexpected exchange auth=%v order=%+v body=%+v", gotAuth, o, gotBody)
	}

	r, err := gw.Refund(ctx, "pay_1", RefundRequest{Amount: 21000})
	if err != nil || r.ID != "rfnd_abc" {
		t.Fatalf("refund: %+v %v", r, err)
	}

	if _, err := gw.Refund(ctx, "missing", RefundRequest{Amount: 1}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestCreateIntent(t *testing.T) {
	e := newEnv(t)
	o := e.place(t, order.PayOnline)

	if _, err := e.payments.CreateIntent(context.Background(), o.ID, order.Actor{Role: order.RoleCustomer, ID: "c2"}); !errors.Is(err, order.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}

	intent, err := e.payments.CreateIntent(context.Background(), o.ID, customer)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	if intent.Amount != 21000 || intent.Currency != "INR" || intent.Key != "rzp_test" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	req := e.gateway.orders[0]
	if req.Receipt != "order_"+string(o.ID) || req.Notes["orderId"] != string(o.ID) {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	got, _ := e.orders.Get(context.Background(), o.ID)
	if got.Payment.GatewayOrderID != intent.GatewayOrderID || got.Payment.Status != order.PaymentPending {
		t.Fatalf("gateway order not recorded: %+v", got.Payment)
	}

	disabled := NewService(e.orders, nil, e.events, Config{}, zerolog.Nop())
	if _, err := disabled.CreateIntent(context.Background(), o.ID, customer); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	e := newEnv(t)
	o := e.place(t, order.PayOnline)
	intent, err := e.payments.CreateIntent(context.Background(), o.ID, customer)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}

	_, err = e.payments.Verify(context.Background(), VerifyCommand{
		OrderID: o.ID, GatewayOrderID: intent.GatewayOrderID, PaymentID: "pay_1", Signature: "deadbeef", Actor: customer,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// a signature valid for another gateway order does not settle this one
	_, err = e.payments.Verify(context.Background(), VerifyCommand{
		OrderID: o.ID, GatewayOrderID: "order_other", PaymentID: "pay_1",
		Signature: Sign(keySecret, CheckoutMessage("order_other", "pay_1")), Actor: customer,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for foreign gateway order, got %v", err)
	}

	cmd := VerifyCommand{
		OrderID:        o.ID,
		GatewayOrderID: intent.GatewayOrderID,
		PaymentID:      "pay_1",
		Signature:      Sign(keySecret, CheckoutMessage(intent.GatewayOrderID, "pay_1")),
		Actor:          customer,
	}
	got, err := e.payments.Verify(context.Background(), cmd)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Payment.Status != order.PaymentCompleted || got.Payment.TransactionID != "pay_1" || got.Payment.PaidAt == nil {
		t.Fatalf("unexpected payment %+v", got.Payment)
	}
	if !got.Payment.PaidAmount.Equal(decimal.NewFromInt(210)) {
		t.Fatalf("paid amount = %s", got.Payment.PaidAmount)
	}

	// retried callback is harmless
	if _, err := e.payments.Verify(context.Background(), cmd); err != nil {
		t.Fatalf("repeat verify: %v", err)
	}
	if n := e.events.count("vendor-v1", "payment-confirmed"); n != 1 {
		t.Fatalf("payment-confirmed published %d times", n)
	}
}

func webhookBody(t *testing.T, ev string, orderID types.ID) []byte {
	t.Helper()
	body := map[string]any{
		"event": ev,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       "pay_wh",
					"order_id": "order_gw1",
					"amount":   21000,
					"notes":    map[string]string{"orderId": string(orderID)},
				},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestWebhookCaptured(t *testing.T) {
	e := newEnv(t)
	o := e.place(t, order.PayOnline)
	raw := webhookBody(t, WebhookPaymentCaptured, o.ID)

	if err := e.payments.HandleWebhook(context.Background(), raw, "bad"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	got, _ := e.orders.Get(context.Background(), o.ID)
	if got.Payment.Status != order.PaymentCompleted || got.Payment.TransactionID != "pay_wh" {
		t.Fatalf("unexpected payment %+v", got.Payment)
	}
	// redelivery
	if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); err != nil {
		t.Fatalf("redelivered webhook: %v", err)
	}
	if n := e.events.count("vendor-v1", "payment-confirmed"); n != 1 {
		t.Fatalf("payment-confirmed published %d times", n)
	}
}

func TestWebhookFailedCancelsOrder(t *testing.T) {
	e := newEnv(t)
	o := e.place(t, order.PayOnline)
	raw := webhookBody(t, WebhookPaymentFailed, o.ID)

	if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	got, _ := e.orders.Get(context.Background(), o.ID)
	if got.Payment.Status != order.PaymentFailed || got.Status != order.StatusCancelled {
		t.Fatalf("expected failed/cancelled, got %s/%s", got.Payment.Status, got.Status)
	}
	if got.Cancellation == nil || got.Cancellation.CancelledBy != order.RoleSystem {
		t.Fatalf("unexpected cancellation %+v", got.Cancellation)
	}
	if e.events.count("customer-c1", "payment-failed") != 1 {
		t.Fatal("customer not told about the failed payment")
	}
}

func TestWebhookUnknownOrderAndEvents(t *testing.T) {
	e := newEnv(t)
	for _, raw := range [][]byte{
		webhookBody(t, WebhookPaymentCaptured, "missing"),
		[]byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":100}}}}`),
		[]byte(`{"event":"order.paid","payload":{}}`),
		[]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":[]}}}}`),
	} {
		if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); err != nil {
			t.Errorf("webhook %s: %v", raw, err)
		}
	}
	raw := []byte(`not json`)
	if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); !errors.Is(err, order.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWebhookFindsOrderByGatewayOrder(t *testing.T) {
	e := newEnv(t)
	o := e.place(t, order.PayOnline)
	intent, err := e.payments.CreateIntent(context.Background(), o.ID, customer)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}

	raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_nn","order_id":"` + intent.GatewayOrderID + `","amount":21000,"notes":[]}}}}`)
	if err := e.payments.HandleWebhook(context.Background(), raw, Sign(webhookSecret, raw)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	got, _ := e.orders.Get(context.Background(), o.ID)
	if got.Payment.Status != order.PaymentCompleted || got.Payment.TransactionID != "pay_nn" {
		t.Fatalf("payment not completed through the gateway order: %+v", got.Payment)
	}
}

func TestConfirmUPI(t *testing.T) {
	e := newEnv(t)

	confirmed := e.place(t, order.PayUPI)
	got, err := e.payments.ConfirmUPI(context.Background(), confirmed.ID, customer, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Payment.Status != order.PaymentPendingVerification || got.Status != order.StatusPlaced {
		t.Fatalf("unexpected state %s/%s", got.Payment.Status, got.Status)
	}
	if e.events.count("vendor-v1", "upi-payment-pending-verification") != 1 {
		t.Fatal("vendor not asked to verify")
	}

	denied := e.place(t, order.PayUPI)
	got, err = e.payments.ConfirmUPI(context.Background(), denied.ID, customer, false)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if got.Payment.Status != order.PaymentFailed || got.Status != order.StatusCancelled {
		t.Fatalf("unexpected state %s/%s", got.Payment.Status, got.Status)
	}
	if e.events.count("vendor-v1", "upi-payment-failed") != 1 {
		t.Fatal("vendor not told about failed UPI payment")
	}

	if _, err := e.payments.ConfirmUPI(context.Background(), confirmed.ID, vendor, true); !errors.Is(err, order.ErrAccessDenied) {
		t.Fatalf("expected access denied for vendor, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	unpaid := e.place(t, order.PayOnline)
	if _, err := e.payments.Refund(ctx, unpaid.ID, vendor, ""); !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected refusal for unpaid order, got %v", err)
	}

	o := e.paid(t)
	if _, err := e.payments.Refund(ctx, o.ID, customer, ""); !errors.Is(err, order.ErrAccessDenied) {
		t.Fatalf("expected customer refund to be denied, got %v", err)
	}
	if _, err := e.payments.Refund(ctx, o.ID, order.Actor{Role: order.RoleVendor, ID: "v9"}, ""); !errors.Is(err, order.ErrAccessDenied) {
		t.Fatalf("expected foreign vendor refund to be denied, got %v", err)
	}

	e.gateway.refundErr = errors.New("gateway down")
	if _, err := e.payments.Refund(ctx, o.ID, vendor, "out of stock"); !errors.Is(err, order.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	e.gateway.refundErr = nil

	res, err := e.payments.Refund(ctx, o.ID, vendor, "out of stock")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.RefundID != "rfnd_1" || !res.Amount.Equal(decimal.NewFromInt(210)) {
		t.Fatalf("unexpected refund %+v", res)
	}
	if res.Order.Status != order.StatusRefunded || res.Order.Payment.Status != order.PaymentRefunded {
		t.Fatalf("unexpected state %s/%s", res.Order.Status, res.Order.Payment.Status)
	}
	if res.Order.Payment.RefundReason != "out of stock" || e.gateway.refunds[0] != "pay_1" {
		t.Fatalf("refund details not recorded: %+v", res.Order.Payment)
	}
	if e.events.count("customer-c1", "refund-processed") != 1 {
		t.Fatal("customer not told about the refund")
	}

	if _, err := e.payments.Refund(ctx, o.ID, vendor, ""); !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected second refund to be refused, got %v", err)
	}
}

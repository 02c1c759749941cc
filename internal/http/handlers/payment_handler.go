// README: Payment handlers: gateway order, checkout verification, webhook, UPI confirmation, refund.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"streeteats/internal/modules/order"
	"streeteats/internal/modules/payment"
	"streeteats/internal/types"
)

// maxWebhookBody caps webhook payloads; gateway events are a few KB.
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	base
	payments *payment.Service
}

func NewPaymentHandler(svc *payment.Service, verbose bool) *PaymentHandler {
	return &PaymentHandler{base: base{verbose: verbose}, payments: svc}
}

type orderRef struct {
	OrderID string `json:"orderId"`
}

func (r orderRef) valid(c *gin.Context) (types.ID, bool) {
	if !isValidID(r.OrderID) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(r.OrderID), true
}

func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleCustomer)
	if !ok {
		return
	}
	var req orderRef
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, ok := req.valid(c)
	if !ok {
		return
	}
	intent, err := h.payments.CreateIntent(c.Request.Context(), id, actor)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Payment order created", gin.H{
		"orderId":  intent.GatewayOrderID,
		"amount":   intent.Amount,
		"currency": intent.Currency,
		"key":      intent.Key,
	})
}

type verifyReq struct {
	orderRef
	GatewayOrderID string `json:"razorpay_order_id"`
	PaymentID      string `json:"razorpay_payment_id"`
	Signature      string `json:"razorpay_signature"`
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleCustomer)
	if !ok {
		return
	}
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, ok := req.valid(c)
	if !ok {
		return
	}
	o, err := h.payments.Verify(c.Request.Context(), payment.VerifyCommand{
		OrderID:        id,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
		Actor:          actor,
	})
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Payment verified successfully", gin.H{
		"paymentId": o.Payment.TransactionID,
		"status":    o.Payment.Status,
	})
}

// Webhook is unauthenticated; the body signature is the credential.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := h.payments.HandleWebhook(c.Request.Context(), raw, c.GetHeader("X-Razorpay-Signature")); err != nil {
		h.writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type confirmUPIReq struct {
	orderRef
	UserConfirmed bool `json:"userConfirmed"`
}

func (h *PaymentHandler) ConfirmUPI(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleCustomer)
	if !ok {
		return
	}
	var req confirmUPIReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, ok := req.valid(c)
	if !ok {
		return
	}
	o, err := h.payments.ConfirmUPI(c.Request.Context(), id, actor, req.UserConfirmed)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Payment status updated successfully.", gin.H{
		"paymentStatus": o.Payment.Status,
		"orderStatus":   o.Status,
	})
}

type refundReq struct {
	orderRef
	Reason string `json:"reason"`
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleVendor, order.RoleAdmin)
	if !ok {
		return
	}
	var req refundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, ok := req.valid(c)
	if !ok {
		return
	}
	res, err := h.payments.Refund(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Refund processed successfully", gin.H{
		"refundId": res.RefundID,
		"amount":   res.Amount,
		"order":    res.Order,
	})
}

package mailer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"streeteats/internal/modules/order"
)

func compose(j job) (subject, body string) {
	o := j.order
	var b strings.Builder
	switch j.kind {
	case confirmation:
		subject = "Order Confirmation - #" + o.OrderNumber
		fmt.Fprintf(&b, "Thank you for your order #%s.\n\n", o.OrderNumber)
		for _, it := range o.Items {
			line := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
			fmt.Fprintf(&b, "  %s x %d - Rs %s\n", it.Name, it.Quantity, line.StringFixed(2))
		}
		fmt.Fprintf(&b, "\nTotal: Rs %s\n", o.Pricing.Total.StringFixed(2))
		fmt.Fprintf(&b, "Payment: %s\n", o.Payment.Method)
		if !o.Timing.EstimatedDeliveryAt.IsZero() {
			fmt.Fprintf(&b, "Estimated at: %s\n", o.Timing.EstimatedDeliveryAt.Format("15:04"))
		}
	default:
		subject = fmt.Sprintf("Order Update - %s", strings.ToUpper(string(o.Status)))
		fmt.Fprintf(&b, "Order #%s\n\n%s\n", o.OrderNumber, order.StatusMessage(o.Status, o.OrderType))
		if o.Status == order.StatusCancelled && o.Cancellation != nil && o.Cancellation.RefundAmount.IsPositive() {
			fmt.Fprintf(&b, "\nA refund of Rs %s will be processed.\n", o.Cancellation.RefundAmount.StringFixed(2))
		}
	}
	b.WriteString("\nStreet Eats\n")
	return subject, b.String()
}

// README: Pricing inputs and the itemised breakdown stored on every order.
package pricing

import "github.com/shopspring/decimal"

type Config struct {
	TaxRate     decimal.Decimal
	DeliveryFee decimal.Decimal
}

// Line is one cart entry. Extras is the per-unit sum of customization surcharges.
type Line struct {
	UnitPrice decimal.Decimal
	Extras    decimal.Decimal
	Quantity  int
}

type Taxes struct {
	CGST  decimal.Decimal `json:"cgst"`
	SGST  decimal.Decimal `json:"sgst"`
	IGST  decimal.Decimal `json:"igst"`
	Total decimal.Decimal `json:"total"`
}

type Breakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Taxes       Taxes           `json:"taxes"`
	Total       decimal.Decimal `json:"total"`
}

// Consistent reports whether the total equals the sum of its components.
func (b Breakdown) Consistent() bool {
	if !b.Taxes.CGST.Add(b.Taxes.SGST).Add(b.Taxes.IGST).Equal(b.Taxes.Total) {
		return false
	}
	return b.Subtotal.Add(b.DeliveryFee).Add(b.Taxes.Total).Equal(b.Total)
}

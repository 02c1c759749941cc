// README: Pricing service computes the order breakdown (subtotal, fee, split tax, total).
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart   = errors.New("cart has no items")
	ErrInvalidLine = errors.New("invalid cart line")
)

var two = decimal.NewFromInt(2)

type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) Config() Config {
	return s.cfg
}

// Quote prices a cart. Tax is split evenly into CGST and SGST; IGST is always zero.
// Pickup and dine-in carts pass chargeDelivery=false and carry no delivery fee.
func (s *Service) Quote(lines []Line, chargeDelivery bool) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, ErrEmptyCart
	}
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 1 || l.UnitPrice.IsNegative() || l.Extras.IsNegative() {
			return Breakdown{}, ErrInvalidLine
		}
		unit := l.UnitPrice.Add(l.Extras)
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	fee := decimal.Zero
	if chargeDelivery {
		fee = s.cfg.DeliveryFee
	}

	tax := subtotal.Mul(s.cfg.TaxRate)
	half := tax.Div(two)
	return Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Taxes: Taxes{
			CGST:  half,
			SGST:  half,
			IGST:  decimal.Zero,
			Total: tax,
		},
		Total: subtotal.Add(fee).Add(tax),
	}, nil
}

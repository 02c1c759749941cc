// README: Money helpers; amounts are decimal rupees, gateways take integer paise.
package types

import "github.com/shopspring/decimal"

const Currency = "INR"

var hundred = decimal.NewFromInt(100)

func Rupees(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Paise converts a rupee amount to the smallest currency unit, rounding half away from zero.
func Paise(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromPaise(p int64) decimal.Decimal {
	return decimal.NewFromInt(p).Div(hundred)
}

// Package money holds the decimal arithmetic shared by checkout and order
// creation so both sides agree on the tax-inclusive amount to the cent.
package money

import "github.com/shopspring/decimal"

// TaxRate is the fixed VAT applied at checkout.
var TaxRate = decimal.RequireFromString("0.19")

var hundred = decimal.NewFromInt(100)

// TaxInclusiveMinor returns round(subtotal * 1.19 * 100).
func TaxInclusiveMinor(subtotal decimal.Decimal) int64 {
	return subtotal.Mul(decimal.NewFromInt(1).Add(TaxRate)).Mul(hundred).Round(0).IntPart()
}

// TaxInclusiveTotal is TaxInclusiveMinor expressed in major units.
func TaxInclusiveTotal(subtotal decimal.Decimal) decimal.Decimal {
	return FromMinor(TaxInclusiveMinor(subtotal))
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

package models

import "github.com/shopspring/decimal"

// Monetary values are exact decimals in the domain and integer minor
// units (cents) in storage. Conversion happens only at the persistence
// boundary; floats never carry money.

// ToCents converts a decimal amount to integer cents, rounding half-up
// to two decimal places first.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

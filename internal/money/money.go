// Package money carries amounts as integer minor units (e.g. cents, or whole
// TZS which has no minor unit) alongside an ISO 4217 currency code. Arithmetic
// on int64 keeps totals exact; fractional intermediate results (shipping cost
// per kg) go through shopspring/decimal and are quantized back.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Money struct {
	Currency string
	Amount   int64
}

func New(currency string, amount int64) Money {
	return Money{Currency: currency, Amount: amount}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// FromDecimal rounds d half-up to zero decimal places and returns the result
// as minor units. Used at the boundary where decimal arithmetic (weight-based
// shipping rates) re-enters integer money.
func FromDecimal(currency string, d decimal.Decimal) Money {
	return Money{
		Currency: currency,
		Amount:   d.Round(0).IntPart(),
	}
}

// Decimal converts back for rate arithmetic.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount)
}

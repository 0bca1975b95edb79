package billing

import (
	"math"
	"strconv"

	"github.com/creditdesk/creditdesk/internal/pkg/env"
)

// Policy converts a net catalog price into the amount actually charged.
type Policy interface {
	ApplyTax(price float64) float64
}

// PercentPolicy adds a flat VAT percentage and rounds to cents.
type PercentPolicy struct {
	Rate float64
}

// NewPolicyFromEnv builds the tax policy from VAT_RATE (percent, default 21).
func NewPolicyFromEnv() Policy {
	rate, err := strconv.ParseFloat(env.GetEnv("VAT_RATE", "21"), 64)
	if err != nil || rate < 0 {
		rate = 21
	}
	return PercentPolicy{Rate: rate}
}

func (p PercentPolicy) ApplyTax(price float64) float64 {
	return Round2(price * (1 + p.Rate/100))
}

// Round2 rounds to two decimal places, the currency precision used across
// catalog prices and ledger amounts.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

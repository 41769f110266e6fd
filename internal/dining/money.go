package dining

import "github.com/shopspring/decimal"

var (
	// DefaultServiceChargeRate is the fixed 7% service charge.
	DefaultServiceChargeRate = decimal.RequireFromString("0.07")

	hundred = decimal.NewFromInt(100)
)

func round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// RateFromPercent turns 7 into 0.07. Non-positive input falls back to the default rate.
func RateFromPercent(percent float64) decimal.Decimal {
	if percent <= 0 {
		return DefaultServiceChargeRate
	}
	return decimal.NewFromFloat(percent).Div(hundred)
}

type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceCharge decimal.Decimal `json:"serviceCharge"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
}

// computeTotals sums price × quantity exactly and rounds each derived figure once.
func computeTotals(lines []OrderItemLine, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	serviceCharge := round2(subtotal.Mul(rate))
	return Totals{
		Subtotal:      subtotal,
		ServiceCharge: serviceCharge,
		VAT:           decimal.Zero,
		Total:         round2(subtotal.Add(serviceCharge)),
	}
}

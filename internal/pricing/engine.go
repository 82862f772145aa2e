package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary amount.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// Line describes a priced line used for totals calculation.
type Line struct {
	Qty       int
	UnitPrice Money
	TaxRate   decimal.Decimal
}

// Summary aggregates computed totals.
type Summary struct {
	Net   Money `json:"net"`
	Tax   Money `json:"tax"`
	Gross Money `json:"gross"`
}

// Subtotal returns qty * unitPrice. Non-positive quantities count as zero.
func Subtotal(qty int, unitPrice Money) Money {
	if qty <= 0 {
		return decimal.Zero
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// Split separates a tax-inclusive amount into its net and tax parts using
// rate expressed in percent. Net is rounded to two places and tax takes the
// remainder so net+tax always equals gross.
func Split(gross Money, rate decimal.Decimal) (net, tax Money) {
	if !rate.IsPositive() {
		return gross, decimal.Zero
	}
	divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
	net = gross.DivRound(divisor, 2)
	return net, gross.Sub(net)
}

// Summarize derives net, tax and gross totals line by line, since tax rates
// differ between products.
func Summarize(lines []Line) Summary {
	sum := Summary{Net: decimal.Zero, Tax: decimal.Zero, Gross: decimal.Zero}
	for _, ln := range lines {
		gross := Subtotal(ln.Qty, ln.UnitPrice)
		net, tax := Split(gross, ln.TaxRate)
		sum.Gross = sum.Gross.Add(gross)
		sum.Net = sum.Net.Add(net)
		sum.Tax = sum.Tax.Add(tax)
	}
	return sum
}

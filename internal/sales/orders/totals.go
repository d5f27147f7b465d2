package orders

import "github.com/shopspring/decimal"

// LineTotal returns unit price times quantity for a single line.
func LineTotal(line OrderLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
}

// OrderTotal sums line totals over the supplied lines.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

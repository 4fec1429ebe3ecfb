package pos

import (
	"github.com/shopspring/decimal"

	"branchpos/internal/database/models"
)

// Money parses a stored amount string. Amounts are persisted as fixed-point
// strings; a malformed or empty value reads as zero, matching how they are
// written.
func Money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func LineTotal(unitPrice string, quantity int32) string {
	return MoneyString(Money(unitPrice).Mul(decimal.NewFromInt32(quantity)))
}

// OrderTotal is the single authoritative total computation: the sum of line
// totals over items not flagged removed. Every path that writes
// Order.TotalAmount must go through it.
func OrderTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.IsRemoved {
			continue
		}
		total = total.Add(Money(item.LineTotal))
	}
	return total
}

// Package pricing turns priced order lines into order totals and a payment status.
//
// It is the single place where subtotal, tax and total are computed. Amounts are kept at full
// decimal precision; rounding to cents happens only when a value is displayed.
package pricing

import (
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
)

// TaxRate is applied to the subtotal of every order.
var TaxRate = decimal.RequireFromString("0.08")

// Line is one requested product after it has been resolved to a current server-side price.
type Line struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Quote struct {
	Items   []models.OrderItem
	Pricing models.Pricing
}

// Price snapshots each line and computes the order pricing block.
func Price(lines []Line) Quote {
	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero

	for _, line := range lines {
		lineTotal := line.Total()
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
			LineTotal: lineTotal,
		})
	}

	tax := subtotal.Mul(TaxRate)
	discount := decimal.Zero

	return Quote{
		Items: items,
		Pricing: models.Pricing{
			Subtotal: subtotal,
			Tax:      tax,
			Discount: discount,
			Total:    subtotal.Add(tax).Sub(discount),
		},
	}
}

func PaymentStatus(total, amountPaid decimal.Decimal) models.PaymentStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(total):
		return models.PaymentStatusPaid
	case amountPaid.IsPositive():
		return models.PaymentStatusPartial
	default:
		return models.PaymentStatusPending
	}
}

// PaymentMethod falls back to CASH when money changed hands and PENDING otherwise.
func PaymentMethod(requested string, amountPaid decimal.Decimal) string {
	if requested != "" {
		return requested
	}
	if amountPaid.IsPositive() {
		return models.PaymentMethodCash
	}
	return models.PaymentMethodPending
}

// DuesDelta is the change an order applies to the payer's pending dues. Negative values are
// store credit.
func DuesDelta(total, amountPaid decimal.Decimal) decimal.Decimal {
	return total.Sub(amountPaid)
}

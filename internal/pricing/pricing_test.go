package pricing

import (
	"testing"

	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceTaxExample(t *testing.T) {
	quote := Price([]Line{
		{ProductID: 1, Name: "Basmati Rice", Price: dec("100"), Quantity: 10},
	})

	assert.Equal(t, "1000.00", quote.Pricing.Subtotal.StringFixed(2))
	assert.Equal(t, "80.00", quote.Pricing.Tax.StringFixed(2))
	assert.True(t, quote.Pricing.Discount.IsZero())
	assert.Equal(t, "1080.00", quote.Pricing.Total.StringFixed(2))
}

func TestPriceSnapshotsLines(t *testing.T) {
	quote := Price([]Line{
		{ProductID: 1, Name: "Milk", Price: dec("2.49"), Quantity: 3},
		{ProductID: 2, Name: "Bread", Price: dec("1.99"), Quantity: 1},
	})

	require.Len(t, quote.Items, 2)
	assert.Equal(t, int64(1), quote.Items[0].ProductID)
	assert.Equal(t, "Milk", quote.Items[0].Name)
	assert.True(t, quote.Items[0].Price.Equal(dec("2.49")))
	assert.True(t, quote.Items[0].LineTotal.Equal(dec("7.47")))
	assert.True(t, quote.Pricing.Subtotal.Equal(dec("9.46")))
}

func TestPriceKeepsFullPrecision(t *testing.T) {
	quote := Price([]Line{
		{ProductID: 1, Name: "Tea", Price: dec("0.33"), Quantity: 3},
	})

	assert.True(t, quote.Pricing.Tax.Equal(dec("0.0792")))
	assert.True(t, quote.Pricing.Total.Equal(dec("1.0692")))
	assert.True(t, quote.Pricing.Total.Equal(quote.Pricing.Subtotal.Add(quote.Pricing.Tax).Sub(quote.Pricing.Discount)))
}

func TestPaymentStatus(t *testing.T) {
	total := dec("100")

	assert.Equal(t, models.PaymentStatusPaid, PaymentStatus(total, dec("100")))
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatus(total, dec("150")))
	assert.Equal(t, models.PaymentStatusPartial, PaymentStatus(total, dec("40")))
	assert.Equal(t, models.PaymentStatusPending, PaymentStatus(total, decimal.Zero))
}

func TestPaymentMethodDefaults(t *testing.T) {
	assert.Equal(t, "ONLINE", PaymentMethod("ONLINE", decimal.Zero))
	assert.Equal(t, models.PaymentMethodCash, PaymentMethod("", dec("5")))
	assert.Equal(t, models.PaymentMethodPending, PaymentMethod("", decimal.Zero))
}

func TestDuesDelta(t *testing.T) {
	assert.True(t, DuesDelta(dec("108"), dec("8")).Equal(dec("100")))
	assert.True(t, DuesDelta(dec("100"), dec("150")).Equal(dec("-50")))
}

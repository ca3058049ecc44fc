// Package receipt renders a printable PDF bill for an order.
package receipt

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const currency = "Rs. "

// Render returns the PDF bytes for order. The QR code carries the order number so a cashier can
// look the order up from a printed copy.
func Render(order *models.Order, customer *models.User) ([]byte, error) {
	qrPNG, err := qrcode.Encode(order.OrderNumber, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "SmartGrocer Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, "Order: "+order.OrderNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Date: "+order.CreatedAt.Format("02 Jan 2006 15:04"), "", 1, "L", false, 0, "")
	if customer != nil {
		pdf.CellFormat(0, 7, fmt.Sprintf("Customer: %s (%s)", customer.Name, customer.Phone), "", 1, "L", false, 0, "")
	}

	imgOpts := gofpdf.ImageOptions{ImageType: "png"}
	pdf.RegisterImageOptionsReader("qr", imgOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 160, 30, 30, 30, false, imgOpts, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(80, 8, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, item := range order.Items {
		pdf.CellFormat(80, 8, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(item.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, money(item.LineTotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totalRow(pdf, "Subtotal", order.Pricing.Subtotal, false)
	totalRow(pdf, "Tax", order.Pricing.Tax, false)
	if !order.Pricing.Discount.IsZero() {
		totalRow(pdf, "Discount", order.Pricing.Discount.Neg(), false)
	}
	totalRow(pdf, "Total", order.Pricing.Total, true)
	totalRow(pdf, "Paid", order.Payment.AmountPaid, false)

	pdf.Ln(4)
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Payment: %s via %s", order.Payment.Status, order.Payment.Method), "", 1, "L", false, 0, "")

	pdf.SetY(-30)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 10, "Thank you for shopping with us.", "T", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "render pdf")
	}
	return buf.Bytes(), nil
}

func totalRow(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Arial", style, 11)
	pdf.CellFormat(135, 7, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, money(amount), "", 1, "R", false, 0, "")
}

func money(d decimal.Decimal) string {
	return currency + d.StringFixed(2)
}

// Package pdf renders customer-facing order receipts.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/service"
)

const storeName = "TiendaPc"

// OrderReceipt renders an A4 receipt for the order: header with the
// order number, status, date and customer, one table row per line and
// the totals block. Amounts are in soles.
func OrderReceipt(order domain.Order) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Recibo %s", order.Number), false)
	// Core fonts are cp1252; accented product names need translating.
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, storeName, "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, fmt.Sprintf("Recibo de pedido %s", order.Number), "", 1, "C", false, 0, "")
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, fmt.Sprintf("Estado: %s", order.Status), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Fecha: %s", order.CreatedAt.UTC().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Cliente: %s", order.UserID), "", 1, "L", false, 0, "")
	doc.Ln(4)

	colWidths := []float64{70, 35, 20, 30, 35}
	headers := []string{"Producto", "SKU", "Cant.", "P.Unit", "Total"}

	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(235, 235, 235)
	for i, header := range headers {
		doc.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, item := range order.Items {
		doc.CellFormat(colWidths[0], 7, tr(item.Name), "1", 0, "L", false, 0, "")
		doc.CellFormat(colWidths[1], 7, item.SKU, "1", 0, "L", false, 0, "")
		doc.CellFormat(colWidths[2], 7, fmt.Sprintf("%d", item.Qty), "1", 0, "R", false, 0, "")
		doc.CellFormat(colWidths[3], 7, money(item.UnitPriceCents), "1", 0, "R", false, 0, "")
		doc.CellFormat(colWidths[4], 7, money(item.TotalCents), "1", 0, "R", false, 0, "")
		doc.Ln(-1)
	}
	doc.Ln(4)

	labelWidth := colWidths[0] + colWidths[1] + colWidths[2] + colWidths[3]
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(labelWidth, 7, "Subtotal", "", 0, "R", false, 0, "")
	doc.CellFormat(colWidths[4], 7, money(order.SubtotalCents), "", 1, "R", false, 0, "")
	doc.CellFormat(labelWidth, 7, "IGV", "", 0, "R", false, 0, "")
	doc.CellFormat(colWidths[4], 7, money(order.TaxCents), "", 1, "R", false, 0, "")
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(labelWidth, 8, "Total", "", 0, "R", false, 0, "")
	doc.CellFormat(colWidths[4], 8, money(order.TotalCents), "", 1, "R", false, 0, "")

	doc.Ln(10)
	doc.SetFont("Helvetica", "I", 10)
	doc.CellFormat(0, 6, tr("¡Gracias por su compra!"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(cents int64) string {
	return "S/ " + service.FormatMoney(cents)
}

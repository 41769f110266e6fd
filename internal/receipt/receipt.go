// Package receipt prints bills as A4 PDF receipts.
package receipt

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"dinein-service/internal/dining"
)

type Header struct {
	RestaurantName string
	Address        string
	Phone          string
	TimeZone       *time.Location
}

const timeLayout = "02 Jan 2006 15:04"

func Render(h Header, r dining.BillReceipt) (*bytes.Buffer, error) {
	loc := h.TimeZone
	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, fallback(h.RestaurantName, "Receipt"), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	if h.Address != "" {
		pdf.CellFormat(0, 5, h.Address, "", 1, "C", false, 0, "")
	}
	if h.Phone != "" {
		pdf.CellFormat(0, 5, h.Phone, "", 1, "C", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Bill #%d", r.ID), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Table %d", r.Table.Number), "", 1, "C", false, 0, "")
	if r.OrderID != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Order #%d", *r.OrderID), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 5, "Opened: "+r.Session.StartedAt.In(loc).Format(timeLayout), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, "Billed: "+r.CreatedAt.In(loc).Format(timeLayout), "", 1, "C", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Items", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, line := range r.Lines {
		pdf.CellFormat(120, 5, fmt.Sprintf("%dx %s", line.Quantity, line.MenuName), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, line.LineTotal().StringFixed(2), "", 1, "R", false, 0, "")
		pdf.CellFormat(0, 4, "  for "+line.MemberName, "", 1, "L", false, 0, "")
		if line.Note != nil && *line.Note != "" {
			pdf.MultiCell(0, 4, "  Note: "+*line.Note, "", "L", false)
		}
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Totals", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, money("Subtotal", r.Subtotal), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, money("Service charge", r.ServiceCharge), "", 1, "L", false, 0, "")
	if !r.VAT.IsZero() {
		pdf.CellFormat(0, 5, money("VAT", r.VAT), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, money("Total", r.Total), "", 1, "L", false, 0, "")

	if len(r.Splits) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Split", "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, sp := range r.Splits {
			state := "due"
			if sp.Paid {
				state = "paid"
			}
			pdf.CellFormat(0, 5, fmt.Sprintf("%s: %s (%s)", sp.MemberName, sp.Amount.StringFixed(2), state), "", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, "Status: "+string(r.Status), "", 1, "L", false, 0, "")
	if p := r.Payment; p != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Payment: %s %s", p.Method, p.Status), "", 1, "L", false, 0, "")
		if p.PaidAt != nil {
			pdf.CellFormat(0, 5, "Paid: "+p.PaidAt.In(loc).Format(timeLayout), "", 1, "L", false, 0, "")
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return &out, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Filename is the attachment name for a bill receipt.
func Filename(r dining.BillReceipt) string {
	name := fmt.Sprintf("receipt-table-%d-bill-%d", r.Table.Number, r.ID)
	return strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_") + ".pdf"
}

func money(label string, v decimal.Decimal) string {
	return fmt.Sprintf("%s: %s THB", label, v.StringFixed(2))
}

func fallback(v string, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

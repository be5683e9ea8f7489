package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"tiendapc/backend/internal/domain"
)

// SalesReport lists paid and completed orders inside the window, oldest
// first, with the grand total.
func (s *Service) SalesReport(ctx context.Context, from *time.Time, to *time.Time) (domain.SalesReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SalesReport{}, err
	}

	rows, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{Rows: rows}
	for _, row := range rows {
		report.TotalCents += row.TotalCents
	}
	return report, nil
}

// SalesReportCSV renders the sales report with the column layout the
// accounting spreadsheet imports expect.
func (s *Service) SalesReportCSV(ctx context.Context, from *time.Time, to *time.Time) ([]byte, error) {
	report, err := s.SalesReport(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Numero", "Fecha", "Total", "Estado"}); err != nil {
		return nil, err
	}
	for _, row := range report.Rows {
		record := []string{
			row.Number,
			row.Date.UTC().Format("2006-01-02 15:04"),
			FormatMoney(row.TotalCents),
			row.Status,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatMoney renders cents as a plain two-decimal amount, e.g. 236.00.
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Package report renders bookings into files the owner downloads: a
// spreadsheet for a date range and a PDF receipt for one booking.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/finance"
)

const bookingsSheet = "Bookings"

var bookingHeaders = []string{
	"Date", "Client", "Status", "Model", "Services", "Products", "Payment",
	"Revenue", "Paid", "Booksy Fee", "Tax", "Total Costs", "Projected Profit", "Real Profit",
}

var bookingWidths = []float64{18, 24, 12, 8, 32, 32, 12, 12, 12, 12, 10, 12, 16, 14}

// BookingsWorkbook builds an .xlsx with one row per booking and a totals
// row. Money columns are numeric so the sheet can be summed further.
func BookingsWorkbook(studio string, from string, to string, bookings []domain.BookingDetail, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), bookingsSheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(bookingHeaders))
	if err != nil {
		return nil, err
	}
	for i, width := range bookingWidths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(bookingsSheet, name, name, width); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", name, err)
		}
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("create title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#3B3B58"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	rowStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders()})
	if err != nil {
		return nil, fmt.Errorf("create row style: %w", err)
	}
	moneyFormat := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Size: 10},
		Border:       thinBorders(),
		CustomNumFmt: &moneyFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true, Size: 10},
		Border:       thinBorders(),
		CustomNumFmt: &moneyFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("create total style: %w", err)
	}

	if err := f.MergeCell(bookingsSheet, "A1", lastCol+"1"); err != nil {
		return nil, fmt.Errorf("merge title: %w", err)
	}
	f.SetCellValue(bookingsSheet, "A1", sanitizeExcelCell(fmt.Sprintf("%s bookings %s to %s", studio, from, to)))
	f.SetCellStyle(bookingsSheet, "A1", lastCol+"1", titleStyle)

	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(bookingsSheet, cell, h)
	}
	f.SetCellStyle(bookingsSheet, "A3", lastCol+"3", headerStyle)

	row := 4
	summaries := make([]finance.Summary, 0, len(bookings))
	for _, b := range bookings {
		sum := b.Financials.Summary
		if b.Booking.Status != domain.BookingCancelled {
			summaries = append(summaries, sum)
		}

		model := ""
		if b.Booking.IsModel {
			model = "yes"
		}
		values := []any{
			b.Booking.StartsAt.In(loc).Format("2006-01-02 15:04"),
			sanitizeExcelCell(b.Client.Name),
			b.Booking.Status,
			model,
			sanitizeExcelCell(serviceNames(b.Services)),
			sanitizeExcelCell(productNames(b.Products)),
			b.Booking.PaymentMethod,
			sum.Revenue,
			sum.TotalPaid,
			sum.BooksyFee,
			sum.TaxAmount,
			sum.TotalCosts,
			sum.ProjectedProfit,
			sum.RealProfit,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(bookingsSheet, cell, v)
		}
		f.SetCellStyle(bookingsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), rowStyle)
		f.SetCellStyle(bookingsSheet, fmt.Sprintf("H%d", row), fmt.Sprintf("%s%d", lastCol, row), moneyStyle)
		row++
	}

	totals := finance.Aggregate(summaries)
	f.SetCellValue(bookingsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("Total (%d bookings, cancelled excluded)", totals.Bookings))
	if err := f.MergeCell(bookingsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row)); err != nil {
		return nil, fmt.Errorf("merge totals: %w", err)
	}
	for i, v := range []float64{totals.Revenue, totals.TotalPaid, totals.BooksyFee, totals.TaxAmount, totals.TotalCosts, totals.ProjectedProfit, totals.RealProfit} {
		cell, _ := excelize.CoordinatesToCellName(8+i, row)
		f.SetCellValue(bookingsSheet, cell, v)
	}
	f.SetCellStyle(bookingsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), totalStyle)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func serviceNames(lines []domain.ServiceLineView) string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.Name)
	}
	return strings.Join(names, ", ")
}

func productNames(lines []domain.ProductLineView) string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Qty > 1 {
			names = append(names, fmt.Sprintf("%s x%d", l.Name, l.Qty))
			continue
		}
		names = append(names, l.Name)
	}
	return strings.Join(names, ", ")
}

func thinBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "#000000", Style: 1},
		{Type: "top", Color: "#000000", Style: 1},
		{Type: "right", Color: "#000000", Style: 1},
		{Type: "bottom", Color: "#000000", Style: 1},
	}
}

// sanitizeExcelCell stops client-entered text from being read as a
// formula when the sheet is opened.
func sanitizeExcelCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}

package report

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"studiobook/backend/internal/domain"
)

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// BookingReceipt renders the client-facing receipt for one booking. Only
// what the client paid for appears; studio costs stay off the page.
func BookingReceipt(studio string, detail domain.BookingDetail, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	b := detail.Booking
	sum := detail.Financials.Summary

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, studio, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Receipt", props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Client", props.Text{Style: fontstyle.Bold}),
			text.New(detail.Client.Name, props.Text{Top: 5}),
			text.New(detail.Client.Email, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Booking: "+b.ID, props.Text{Size: 8, Align: align.Right}),
			text.New("Date: "+b.StartsAt.In(loc).Format("2006-01-02 15:04"), props.Text{Top: 5, Align: align.Right}),
			text.New("Status: "+b.Status, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range detail.Services {
		price := 0.0
		if line.Price != nil && !b.IsModel {
			price = *line.Price
		}
		name := line.Name
		if b.IsModel {
			name += " (model)"
		}
		m.AddRow(8,
			text.NewCol(6, name, props.Text{Size: 9}),
			text.NewCol(2, "1", props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(price), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(price), props.Text{Size: 9, Align: align.Right}),
		)
	}
	for _, line := range detail.Products {
		unit := line.SalePrice
		if line.PriceOverride != nil {
			unit = *line.PriceOverride
		}
		m.AddRow(8,
			text.NewCol(6, line.Name, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", line.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(unit), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(unit*float64(line.Qty)), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if sum.TravelAmount > 0 {
		m.AddRow(8,
			text.NewCol(6, "Travel", props.Text{Size: 9}),
			col.New(4),
			text.NewCol(2, money(sum.TravelAmount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 10, Style: fontstyle.Bold, Top: 3}),
		text.NewCol(2, money(sum.Revenue), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 3}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(2, money(sum.TotalPaid), props.Text{Size: 9, Align: align.Right}),
	)
	if b.PaymentMethod != "" {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "Method", props.Text{Size: 9}),
			text.NewCol(2, b.PaymentMethod, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

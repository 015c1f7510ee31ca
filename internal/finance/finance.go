// Package finance derives revenue, cost and profit figures for a booking.
//
// Every surface that shows money for a booking (the form preview, the
// booking detail and the dashboard) goes through Compute, so the numbers
// agree everywhere. Nothing here fails: missing values count as zero.
package finance

import "math"

const (
	// TaxRate applies to the amount actually paid, not to revenue.
	TaxRate = 0.085
	// BooksyFeeRate applies to the first service line only.
	BooksyFeeRate = 0.4305
	// ProfitTolerance is the largest gap at which projected and real
	// profit are shown as one figure.
	ProfitTolerance = 0.01
)

type ServiceLine struct {
	Price *float64
}

type ProductLine struct {
	Qty           int
	PriceOverride *float64
	SalePrice     float64
	Cost          float64
}

type BrokenLine struct {
	Qty          int
	CostOverride *float64
	Cost         float64
}

type Booking struct {
	IsModel              bool
	TravelEnabled        bool
	TravelFee            *float64
	TaxEnabled           bool
	BooksyFeeEnabled     bool
	BrokenEarringEnabled bool
	TotalPaid            *float64
	Services             []ServiceLine
	Products             []ProductLine
	Broken               []BrokenLine
}

type Summary struct {
	ServiceRevenue  float64 `json:"service_revenue"`
	ProductRevenue  float64 `json:"product_revenue"`
	ProductCost     float64 `json:"product_cost"`
	BrokenLoss      float64 `json:"broken_loss"`
	TravelAmount    float64 `json:"travel_amount"`
	BooksyFee       float64 `json:"booksy_fee"`
	TaxAmount       float64 `json:"tax_amount"`
	Revenue         float64 `json:"revenue"`
	TotalPaid       float64 `json:"total_paid"`
	TotalCosts      float64 `json:"total_costs"`
	ProjectedProfit float64 `json:"projected_profit"`
	RealProfit      float64 `json:"real_profit"`
}

// Compute runs the booking formulas against b.
func Compute(b Booking) Summary {
	var s Summary

	for _, line := range b.Services {
		s.ServiceRevenue += servicePrice(line, b.IsModel)
	}

	for _, line := range b.Products {
		qty := float64(line.Qty)
		unit := line.SalePrice
		if line.PriceOverride != nil {
			unit = *line.PriceOverride
		}
		s.ProductRevenue += unit * qty
		s.ProductCost += line.Cost * qty
	}

	for _, line := range b.Broken {
		cost := line.Cost
		if line.CostOverride != nil {
			cost = *line.CostOverride
		}
		s.BrokenLoss += cost * float64(line.Qty)
	}

	if b.TravelEnabled {
		s.TravelAmount = value(b.TravelFee)
	}
	if b.BooksyFeeEnabled && len(b.Services) > 0 {
		s.BooksyFee = servicePrice(b.Services[0], b.IsModel) * BooksyFeeRate
	}

	s.TotalPaid = value(b.TotalPaid)
	if b.TaxEnabled {
		s.TaxAmount = s.TotalPaid * TaxRate
	}

	s.Revenue = s.ServiceRevenue + s.ProductRevenue + s.TravelAmount
	s.TotalCosts = s.ProductCost + s.BooksyFee + s.TaxAmount
	if b.BrokenEarringEnabled {
		s.TotalCosts += s.BrokenLoss
	}
	s.ProjectedProfit = s.Revenue - s.TotalCosts
	s.RealProfit = s.TotalPaid - s.TotalCosts
	return s
}

// ProfitsMatch reports whether projected and real profit collapse into
// a single displayed figure.
func (s Summary) ProfitsMatch() bool {
	return math.Abs(s.ProjectedProfit-s.RealProfit) < ProfitTolerance
}

// DisplayProfit returns the single profit figure when both match, and
// nil otherwise so callers show both.
func (s Summary) DisplayProfit() *float64 {
	if !s.ProfitsMatch() {
		return nil
	}
	profit := s.RealProfit
	return &profit
}

// ApplyModelPricing sets every service line to 0 when isModel is on and
// back to the catalog base price when it is off. basePrices is indexed
// like lines; a missing base price leaves the line unset.
func ApplyModelPricing(lines []ServiceLine, isModel bool, basePrices []*float64) []ServiceLine {
	out := make([]ServiceLine, len(lines))
	for i := range lines {
		if isModel {
			zero := 0.0
			out[i] = ServiceLine{Price: &zero}
			continue
		}
		if i < len(basePrices) && basePrices[i] != nil {
			price := *basePrices[i]
			out[i] = ServiceLine{Price: &price}
			continue
		}
		out[i] = ServiceLine{}
	}
	return out
}

// Overridden reports whether a line override differs from the catalog
// value. It only drives the "reset to default" affordance.
func Overridden(override *float64, catalog float64) bool {
	if override == nil {
		return false
	}
	return math.Abs(*override-catalog) >= ProfitTolerance
}

func servicePrice(line ServiceLine, isModel bool) float64 {
	if isModel {
		return 0
	}
	return value(line.Price)
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

package finance

import "math"

type Totals struct {
	Bookings        int     `json:"bookings"`
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

// Aggregate sums per-booking summaries. Broken loss is summed as reported;
// it only counts towards TotalCosts where the booking enabled it.
func Aggregate(summaries []Summary) Totals {
	var t Totals
	for _, s := range summaries {
		t.Bookings++
		t.ServiceRevenue += s.ServiceRevenue
		t.ProductRevenue += s.ProductRevenue
		t.ProductCost += s.ProductCost
		t.BrokenLoss += s.BrokenLoss
		t.TravelAmount += s.TravelAmount
		t.BooksyFee += s.BooksyFee
		t.TaxAmount += s.TaxAmount
		t.Revenue += s.Revenue
		t.TotalPaid += s.TotalPaid
		t.TotalCosts += s.TotalCosts
		t.ProjectedProfit += s.ProjectedProfit
		t.RealProfit += s.RealProfit
	}
	return t
}

// GrowthPercent compares two period values. A zero previous period
// reports 100 when anything was earned now, 0 otherwise. The change is
// measured against |previous| so that climbing out of a loss is positive.
func GrowthPercent(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return ((current - previous) / math.Abs(previous)) * 100
}

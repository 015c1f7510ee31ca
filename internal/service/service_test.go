package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/store/memory"
)

const delta = 0.001

func ptr(v float64) *float64 { return &v }

type mapCache struct {
	entries       map[string]domain.Dashboard
	invalidations int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]domain.Dashboard{}}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.Dashboard, bool, error) {
	d, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.Dashboard, _ time.Duration) error {
	c.entries[key] = *value
	return nil
}

func (c *mapCache) Invalidate(_ context.Context) error {
	c.invalidations++
	c.entries = map[string]domain.Dashboard{}
	return nil
}

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, Options{})
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "owner", Role: domain.RoleOwner})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

// secondOfMonth lands inside the default dashboard range, after the seed.
func secondOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 2, 10, 0, 0, 0, time.UTC)
}

func scenarioRequest() domain.BookingRequest {
	return domain.BookingRequest{
		ClientID:         memory.SeedSecondClientID,
		StartsAt:         secondOfMonth(),
		Status:           domain.BookingCompleted,
		TravelEnabled:    true,
		TravelFee:        ptr(20),
		TaxEnabled:       true,
		BooksyFeeEnabled: true,
		TotalPaid:        ptr(140),
		PaymentMethod:    "cash",
		Services:         []domain.BookingService{{ServiceID: memory.SeedLobeServiceID, Price: ptr(80)}},
		Products:         []domain.BookingProduct{{ProductID: memory.SeedStudProductID, Qty: 1}},
	}
}

func TestCreateBookingComputesScenarioFigures(t *testing.T) {
	svc := newTestService()

	detail, err := svc.CreateBooking(staffCtx(), scenarioRequest())
	require.NoError(t, err)

	sum := detail.Financials.Summary
	assert.InDelta(t, 140, sum.Revenue, delta)
	assert.InDelta(t, 34.44, sum.BooksyFee, delta)
	assert.InDelta(t, 11.90, sum.TaxAmount, delta)
	assert.InDelta(t, 61.34, sum.TotalCosts, delta)
	assert.InDelta(t, 78.66, sum.RealProfit, delta)
	assert.True(t, detail.Financials.ProfitsMatch)
	require.NotNil(t, detail.Financials.Profit)
	assert.InDelta(t, 78.66, *detail.Financials.Profit, delta)

	assert.Equal(t, 30, detail.Booking.DurationMinutes)
	assert.InDelta(t, 80, detail.Booking.Snapshot.ServicePrice, delta)
	assert.InDelta(t, 40, detail.Booking.Snapshot.ProductRevenue, delta)
	assert.InDelta(t, 61.34, detail.Booking.Snapshot.TotalCosts, delta)
	assert.InDelta(t, 78.66, detail.Booking.Snapshot.Profit, delta)
	assert.Equal(t, "Jordan Alvarez", detail.Client.Name)
	assert.NotEmpty(t, detail.Booking.Services[0].ID)
}

func TestBookingRoundTripPreservesInputs(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	req := scenarioRequest()
	req.Notes = "double lobe, left side first"
	req.BrokenEarringEnabled = true
	req.Services = append(req.Services, domain.BookingService{ServiceID: memory.SeedHelixServiceID, Price: ptr(55.5)})
	req.Products = []domain.BookingProduct{
		{ProductID: memory.SeedStudProductID, Qty: 2, PriceOverride: ptr(35)},
		{ProductID: memory.SeedHoopProductID, Qty: 1},
	}
	req.Broken = []domain.BookingBrokenItem{
		{ProductID: memory.SeedHoopProductID, Qty: 1, CostOverride: ptr(50)},
	}

	created, err := svc.CreateBooking(ctx, req)
	require.NoError(t, err)

	loaded, err := svc.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)

	assert.Equal(t, created.Booking.Services, loaded.Booking.Services)
	assert.Equal(t, created.Booking.Products, loaded.Booking.Products)
	assert.Equal(t, created.Booking.Broken, loaded.Booking.Broken)
	assert.Equal(t, req.Notes, loaded.Booking.Notes)
	assert.True(t, loaded.Booking.BrokenEarringEnabled)
	assert.Equal(t, created.Financials, loaded.Financials)

	assert.True(t, loaded.Services[1].PriceOverridden)
	assert.True(t, loaded.Products[0].PriceOverridden)
	assert.False(t, loaded.Products[1].PriceOverridden)
	assert.True(t, loaded.Broken[0].CostOverridden)
	assert.Equal(t, 60, loaded.Booking.DurationMinutes)
	assert.InDelta(t, 50, loaded.Financials.Summary.BrokenLoss, delta)
}

func TestUpdateBookingReplacesLines(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	created, err := svc.CreateBooking(ctx, scenarioRequest())
	require.NoError(t, err)

	req := scenarioRequest()
	req.Services = []domain.BookingService{{ServiceID: memory.SeedHelixServiceID}}
	req.Products = []domain.BookingProduct{{ID: created.Booking.Products[0].ID, ProductID: memory.SeedStudProductID, Qty: 3}}
	req.Status = domain.BookingCancelled

	updated, err := svc.UpdateBooking(ctx, created.Booking.ID, req)
	require.NoError(t, err)

	assert.Equal(t, created.Booking.ID, updated.Booking.ID)
	assert.Equal(t, created.Booking.CreatedAt, updated.Booking.CreatedAt)
	require.Len(t, updated.Booking.Services, 1)
	assert.Equal(t, memory.SeedHelixServiceID, updated.Booking.Services[0].ServiceID)
	require.NotNil(t, updated.Booking.Services[0].Price)
	assert.InDelta(t, 65, *updated.Booking.Services[0].Price, delta, "missing price defaults to catalog")
	assert.Equal(t, created.Booking.Products[0].ID, updated.Booking.Products[0].ID)
	assert.Equal(t, domain.BookingCancelled, updated.Booking.Status)

	_, err = svc.UpdateBooking(ctx, "0f0f0f0f-0000-4000-8000-000000000000", req)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateBookingValidation(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	tests := []struct {
		name   string
		mutate func(*domain.BookingRequest)
		field  string
	}{
		{"missing client", func(r *domain.BookingRequest) { r.ClientID = "" }, "client_id"},
		{"unknown client", func(r *domain.BookingRequest) { r.ClientID = "0f0f0f0f-0000-4000-8000-000000000000" }, "client_id"},
		{"no services", func(r *domain.BookingRequest) { r.Services = nil }, "services"},
		{"no products", func(r *domain.BookingRequest) { r.Products = nil }, "products"},
		{"zero qty", func(r *domain.BookingRequest) { r.Products[0].Qty = 0 }, "products[0].qty"},
		{"negative price", func(r *domain.BookingRequest) { r.Services[0].Price = ptr(-1) }, "services[0].price"},
		{"negative travel", func(r *domain.BookingRequest) { r.TravelFee = ptr(-5) }, "travel_fee"},
		{"unknown product", func(r *domain.BookingRequest) { r.Products[0].ProductID = "nope" }, "products[0].product_id"},
		{"tiny broken cost", func(r *domain.BookingRequest) {
			r.Broken = []domain.BookingBrokenItem{{ProductID: memory.SeedStudProductID, Qty: 1, CostOverride: ptr(0.005)}}
		}, "broken[0].cost_override"},
		{"bad payment method", func(r *domain.BookingRequest) { r.PaymentMethod = "crypto" }, "payment_method"},
		{"bad line id", func(r *domain.BookingRequest) { r.Services[0].ID = "line-1" }, "services[0].id"},
		{"missing start", func(r *domain.BookingRequest) { r.StartsAt = time.Time{} }, "starts_at"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := scenarioRequest()
			tc.mutate(&req)

			_, err := svc.CreateBooking(ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrInvalidInput)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestModelBookingZeroesServicesAndBooksyFee(t *testing.T) {
	svc := newTestService()

	req := scenarioRequest()
	req.IsModel = true

	detail, err := svc.CreateBooking(staffCtx(), req)
	require.NoError(t, err)

	require.NotNil(t, detail.Booking.Services[0].Price)
	assert.Zero(t, *detail.Booking.Services[0].Price)
	assert.Zero(t, detail.Financials.Summary.ServiceRevenue)
	assert.Zero(t, detail.Financials.Summary.BooksyFee)
	assert.False(t, detail.Services[0].PriceOverridden)
}

func TestModelPricingTogglesPrices(t *testing.T) {
	svc := newTestService()
	lines := []domain.BookingService{
		{ID: "a1", ServiceID: memory.SeedLobeServiceID, Price: ptr(95)},
		{ID: "a2", ServiceID: memory.SeedHelixServiceID},
	}

	on, err := svc.ModelPricing(context.Background(), domain.ModelPricingRequest{IsModel: true, Services: lines})
	require.NoError(t, err)
	for _, line := range on.Services {
		require.NotNil(t, line.Price)
		assert.Zero(t, *line.Price)
	}
	assert.Equal(t, "a1", on.Services[0].ID)

	off, err := svc.ModelPricing(context.Background(), domain.ModelPricingRequest{IsModel: false, Services: on.Services})
	require.NoError(t, err)
	assert.InDelta(t, 80, *off.Services[0].Price, delta)
	assert.InDelta(t, 65, *off.Services[1].Price, delta)
}

func TestPreviewToleratesIncompleteForm(t *testing.T) {
	svc := newTestService()

	view, err := svc.PreviewBooking(context.Background(), domain.BookingRequest{
		TaxEnabled:       true,
		BooksyFeeEnabled: true,
		Services:         []domain.BookingService{{}},
		Products: []domain.BookingProduct{
			{ProductID: memory.SeedStudProductID, Qty: 2},
			{ProductID: "not-selected-yet", Qty: 1, PriceOverride: ptr(10)},
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 90, view.Summary.ProductRevenue, delta)
	assert.InDelta(t, 30, view.Summary.ProductCost, delta)
	assert.Zero(t, view.Summary.BooksyFee)
	assert.Zero(t, view.Summary.TaxAmount)
	assert.False(t, view.ProfitsMatch)
	assert.Nil(t, view.Profit)
}

func TestDashboardAggregatesAndExcludesCancelled(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	base, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, base.Totals.Bookings)
	assert.InDelta(t, 140, base.Totals.Revenue, delta)
	assert.InDelta(t, 78.66, base.Totals.RealProfit, delta)
	assert.True(t, base.ProfitsMatch)

	cancelled := scenarioRequest()
	cancelled.Status = domain.BookingCancelled
	_, err = svc.CreateBooking(ctx, cancelled)
	require.NoError(t, err)

	second := scenarioRequest()
	second.PaymentMethod = ""
	_, err = svc.CreateBooking(ctx, second)
	require.NoError(t, err)

	_, err = svc.CreateAdditionalCost(ctx, domain.AdditionalCostRequest{
		Description: "Autoclave service",
		Category:    "equipment",
		Amount:      25,
		IncurredOn:  formatDay(secondOfMonth()),
	})
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Totals.Bookings)
	assert.InDelta(t, 280, d.Totals.Revenue, delta)
	assert.InDelta(t, 157.32, d.Totals.RealProfit, delta)
	assert.InDelta(t, 25, d.AdditionalCosts, delta)
	assert.InDelta(t, 132.32, d.NetProfit, delta)

	require.Len(t, d.ByPayment, 2)
	methods := []string{d.ByPayment[0].PaymentMethod, d.ByPayment[1].PaymentMethod}
	assert.ElementsMatch(t, []string{"card", unspecifiedPayment}, methods)

	require.NotEmpty(t, d.TopServices)
	assert.Equal(t, memory.SeedLobeServiceID, d.TopServices[0].ServiceID)
	assert.Equal(t, 2, d.TopServices[0].Count)

	require.Len(t, d.CostsByCategory, 1)
	assert.Equal(t, "equipment", d.CostsByCategory[0].Category)

	lowNames := make([]string, 0, len(d.LowStock))
	for _, p := range d.LowStock {
		lowNames = append(lowNames, p.Name)
	}
	assert.Contains(t, lowNames, "Opal Labret Top")
}

func TestDashboardCacheInvalidatedByWrites(t *testing.T) {
	c := newMapCache()
	svc := New(memory.NewSeeded(), c, Options{DashboardTTL: time.Minute})
	ctx := ownerCtx()

	_, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, c.entries, 1)

	_, err = svc.CreateBooking(ctx, scenarioRequest())
	require.NoError(t, err)
	assert.Empty(t, c.entries)
	assert.Equal(t, 1, c.invalidations)

	d, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Totals.Bookings)
}

func TestOwnerOnlyOperations(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	assert.ErrorIs(t, svc.DeleteBooking(ctx, memory.SeedBookingID), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteClient(ctx, memory.SeedSecondClientID), ErrForbidden)

	_, err := svc.Dashboard(ctx, "", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateAdditionalCost(ctx, domain.AdditionalCostRequest{Description: "rent", Amount: 900})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Seam ring", SalePrice: 45, Cost: 12})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.DeleteBooking(ownerCtx(), memory.SeedBookingID))
}

func TestAdditionalCostValidation(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	_, err := svc.CreateAdditionalCost(ctx, domain.AdditionalCostRequest{Amount: 0.001, IncurredOn: "yesterday"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "description")
	assert.Contains(t, verr.Fields, "amount")
	assert.Contains(t, verr.Fields, "incurred_on")

	created, err := svc.CreateAdditionalCost(ctx, domain.AdditionalCostRequest{Description: "Needles", Amount: 42.5, IncurredOn: "2026-03-04"})
	require.NoError(t, err)
	assert.Equal(t, defaultCostCategory, created.Category)
	assert.Equal(t, "2026-03-04", formatDay(created.IncurredOn))

	amount := 50.0
	updated, err := svc.UpdateAdditionalCost(ctx, created.ID, domain.AdditionalCostUpdateRequest{Amount: &amount})
	require.NoError(t, err)
	assert.InDelta(t, 50, updated.Amount, delta)

	listed, err := svc.ListAdditionalCosts(ctx, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestListBookingsRange(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	resp, err := svc.ListBookings(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, "Maya Chen", resp.Bookings[0].ClientName)
	assert.Equal(t, resp.Bookings[0].StartsAt.Add(30*time.Minute), resp.Bookings[0].EndsAt)

	_, err = svc.ListBookings(ctx, "2026-13-01", "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.ListBookings(ctx, "2026-03-10", "2026-03-01")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCatalogWrites(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Seam Ring", SalePrice: 45, Cost: 12, StockQty: 4})
	require.NoError(t, err)
	assert.Equal(t, defaultProductCategory, created.Category)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Free sample", SalePrice: 0, Cost: 0})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	adjusted, err := svc.AdjustStock(staffCtx(), created.ID, domain.StockAdjustRequest{Delta: -4, Reason: "count"})
	require.NoError(t, err)
	assert.Zero(t, adjusted.StockQty)

	_, err = svc.AdjustStock(staffCtx(), created.ID, domain.StockAdjustRequest{Delta: -1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.CreateService(ctx, domain.ServiceCreateRequest{Name: "lobe piercing", BasePrice: 10})
	assert.ErrorIs(t, err, store.ErrConflict)

	inactive := false
	_, err = svc.UpdateService(ctx, memory.SeedHelixServiceID, domain.ServiceUpdateRequest{Active: &inactive})
	require.NoError(t, err)
	active, err := svc.ListServices(ctx, false)
	require.NoError(t, err)
	for _, s := range active {
		assert.NotEqual(t, memory.SeedHelixServiceID, s.ID)
	}
}

func TestAuditTrailRecordsActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateClient(staffCtx(), domain.ClientCreateRequest{Name: "Sam Rivera", Email: "sam@example.com"})
	require.NoError(t, err)

	logs, err := svc.ListAuditLogs(ownerCtx(), "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	found := false
	for _, entry := range logs {
		if entry.Action == "client_create" {
			found = true
			assert.Equal(t, "staff", entry.ActorUsername)
		}
	}
	assert.True(t, found)

	_, err = svc.ListAuditLogs(staffCtx(), "", 10)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPreviewMatchesSavedFigures(t *testing.T) {
	svc := newTestService()
	req := scenarioRequest()
	req.Services[0].Price = nil

	view, err := svc.PreviewBooking(context.Background(), req)
	require.NoError(t, err)

	saved, err := svc.CreateBooking(staffCtx(), req)
	require.NoError(t, err)

	assert.InDelta(t, saved.Financials.Summary.RealProfit, view.Summary.RealProfit, delta)
	assert.InDelta(t, 78.66, view.Summary.RealProfit, delta)
}

func TestDashboardGrowthAgainstLossPeriod(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	unpaid := scenarioRequest()
	unpaid.StartsAt = time.Date(2025, time.January, 20, 10, 0, 0, 0, time.UTC)
	unpaid.TotalPaid = ptr(0)
	_, err := svc.CreateBooking(ctx, unpaid)
	require.NoError(t, err)

	for _, day := range []int{10, 11} {
		req := scenarioRequest()
		req.StartsAt = time.Date(2025, time.February, day, 10, 0, 0, 0, time.UTC)
		_, err := svc.CreateBooking(ctx, req)
		require.NoError(t, err)
	}

	d, err := svc.Dashboard(ctx, "2025-02-01", "2025-02-28")
	require.NoError(t, err)
	assert.InDelta(t, 280, d.Totals.Revenue, delta)
	assert.InDelta(t, 157.32, d.Totals.RealProfit, delta)
	assert.InDelta(t, 140, d.PreviousRevenue, delta)
	assert.InDelta(t, -49.44, d.PreviousRealProfit, delta)

	assert.InDelta(t, 100, d.RevenueGrowthPercent, delta)
	assert.Greater(t, d.ProfitGrowthPercent, 0.0)
	assert.InDelta(t, 418.20, d.ProfitGrowthPercent, 0.01)
}

// writeDuringDashboard lands a write while the dashboard is being built.
type writeDuringDashboard struct {
	*memory.Store
	write func(ctx context.Context)
}

func (r *writeDuringDashboard) ListAdditionalCosts(ctx context.Context, from time.Time, to time.Time) ([]domain.AdditionalCost, error) {
	if r.write != nil {
		r.write(ctx)
		r.write = nil
	}
	return r.Store.ListAdditionalCosts(ctx, from, to)
}

func TestDashboardNotCachedWhenWriteLandsMidway(t *testing.T) {
	c := newMapCache()
	repo := &writeDuringDashboard{Store: memory.NewSeeded()}
	svc := New(repo, c, Options{DashboardTTL: time.Minute})
	ctx := ownerCtx()
	repo.write = func(ctx context.Context) {
		_, err := svc.CreateBooking(ctx, scenarioRequest())
		require.NoError(t, err)
	}

	d, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Totals.Bookings)
	assert.Empty(t, c.entries)

	d, err = svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Totals.Bookings)
	assert.Len(t, c.entries, 1)
}

func TestInactiveCatalogItemsRejectedOnNewLines(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()
	inactive := false

	_, err := svc.UpdateService(ctx, memory.SeedHelixServiceID, domain.ServiceUpdateRequest{Active: &inactive})
	require.NoError(t, err)

	req := scenarioRequest()
	req.Services = []domain.BookingService{{ServiceID: memory.SeedHelixServiceID}}
	_, err = svc.CreateBooking(ctx, req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "service is inactive", verr.Fields["services[0].service_id"])

	kept, err := svc.CreateBooking(ctx, scenarioRequest())
	require.NoError(t, err)
	_, err = svc.UpdateProduct(ctx, memory.SeedStudProductID, domain.ProductUpdateRequest{Active: &inactive})
	require.NoError(t, err)

	// a booking that already sells the product can still be edited
	update := scenarioRequest()
	update.Notes = "rescheduled"
	_, err = svc.UpdateBooking(ctx, kept.Booking.ID, update)
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, scenarioRequest())
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "product is inactive", verr.Fields["products[0].product_id"])

	broken := scenarioRequest()
	broken.Products = []domain.BookingProduct{{ProductID: memory.SeedHoopProductID, Qty: 1}}
	broken.Broken = []domain.BookingBrokenItem{{ProductID: memory.SeedStudProductID, Qty: 1}}
	_, err = svc.CreateBooking(ctx, broken)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "product is inactive", verr.Fields["broken[0].product_id"])
}

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

func TestSaveBookingRoundTripReplacesLines(t *testing.T) {
	databaseURL := os.Getenv("STUDIO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STUDIO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	client := domain.Client{ID: xid.New(), Name: "Integration Client", CreatedAt: now, UpdatedAt: now}
	svc := domain.Service{ID: xid.New(), Name: "IT Service " + xid.New(), BasePrice: 80, DurationMinutes: 30, Active: true, CreatedAt: now}
	product := domain.Product{ID: xid.New(), Name: "IT Stud", Category: "earring", SalePrice: 40, Cost: 15, StockQty: 5, Active: true, CreatedAt: now}
	bookingID := xid.New()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, bookingID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, svc.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, client.ID)
	})

	_, err = s.CreateClient(ctx, client)
	require.NoError(t, err)
	_, err = s.CreateService(ctx, svc)
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, product)
	require.NoError(t, err)

	price := 80.0
	override := 35.5
	paid := 140.0
	booking := domain.Booking{
		ID:               bookingID,
		ClientID:         client.ID,
		StartsAt:         now,
		Status:           domain.BookingScheduled,
		TaxEnabled:       true,
		BooksyFeeEnabled: true,
		TotalPaid:        &paid,
		PaymentMethod:    "card",
		Services:         []domain.BookingService{{ID: xid.New(), ServiceID: svc.ID, Price: &price}},
		Products: []domain.BookingProduct{
			{ID: xid.New(), ProductID: product.ID, Qty: 1},
			{ID: xid.New(), ProductID: product.ID, Qty: 2, PriceOverride: &override},
		},
		Snapshot: domain.BookingSnapshot{ServicePrice: 80, ProductRevenue: 111, TotalCosts: 91.34, Profit: 48.66},
	}

	saved, err := s.SaveBooking(ctx, booking)
	require.NoError(t, err)

	reloaded, err := s.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, saved.Services, reloaded.Services)
	assert.Equal(t, saved.Products, reloaded.Products)
	assert.Empty(t, reloaded.Broken)
	assert.Equal(t, saved.Snapshot, reloaded.Snapshot)

	// saving the reloaded record again is a no-op for the line set
	again, err := s.SaveBooking(ctx, *reloaded)
	require.NoError(t, err)
	assert.Equal(t, reloaded.Products, again.Products)

	reloaded.Products = reloaded.Products[:1]
	_, err = s.SaveBooking(ctx, *reloaded)
	require.NoError(t, err)

	final, err := s.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Len(t, final.Products, 1)

	assert.ErrorIs(t, s.DeleteProduct(ctx, product.ID), store.ErrConflict)
}

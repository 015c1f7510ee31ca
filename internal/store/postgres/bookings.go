package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

const bookingColumns = `
	id, client_id, starts_at, duration_minutes, status, notes,
	is_model, travel_enabled, travel_fee, tax_enabled, booksy_fee_enabled,
	broken_earring_enabled, total_paid, payment_method,
	service_price, product_revenue, total_costs, profit,
	created_at, updated_at
`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) ListBookings(ctx context.Context, from time.Time, to time.Time) ([]domain.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}

	bookings := make([]domain.Booking, 0, 32)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := loadLines(ctx, s.db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	bookings := []domain.Booking{b}
	if err := loadLines(ctx, s.db, bookings); err != nil {
		return nil, err
	}
	return &bookings[0], nil
}

// SaveBooking upserts the booking row, then deletes and re-inserts every
// line collection. Line order is kept through the position column.
func (s *Store) SaveBooking(ctx context.Context, b domain.Booking) (*domain.Booking, error) {
	if !xid.Valid(b.ID) || !xid.Valid(b.ClientID) {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO bookings (
			id, client_id, starts_at, duration_minutes, status, notes,
			is_model, travel_enabled, travel_fee, tax_enabled, booksy_fee_enabled,
			broken_earring_enabled, total_paid, payment_method,
			service_price, product_revenue, total_costs, profit,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			starts_at = EXCLUDED.starts_at,
			duration_minutes = EXCLUDED.duration_minutes,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			is_model = EXCLUDED.is_model,
			travel_enabled = EXCLUDED.travel_enabled,
			travel_fee = EXCLUDED.travel_fee,
			tax_enabled = EXCLUDED.tax_enabled,
			booksy_fee_enabled = EXCLUDED.booksy_fee_enabled,
			broken_earring_enabled = EXCLUDED.broken_earring_enabled,
			total_paid = EXCLUDED.total_paid,
			payment_method = EXCLUDED.payment_method,
			service_price = EXCLUDED.service_price,
			product_revenue = EXCLUDED.product_revenue,
			total_costs = EXCLUDED.total_costs,
			profit = EXCLUDED.profit,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`,
		b.ID, b.ClientID, b.StartsAt, b.DurationMinutes, b.Status, nullIfEmpty(b.Notes),
		b.IsModel, b.TravelEnabled, nullFloat(b.TravelFee), b.TaxEnabled, b.BooksyFeeEnabled,
		b.BrokenEarringEnabled, nullFloat(b.TotalPaid), nullIfEmpty(b.PaymentMethod),
		b.Snapshot.ServicePrice, b.Snapshot.ProductRevenue, b.Snapshot.TotalCosts, b.Snapshot.Profit,
		b.CreatedAt, b.UpdatedAt,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown client", store.ErrInvalidInput)
		}
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()

	for _, table := range []string{"booking_services", "booking_products", "booking_broken_items"} {
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM `+table+` WHERE booking_id = $1`, b.ID); err != nil {
			return nil, err
		}
	}

	for i, line := range b.Services {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO booking_services (id, booking_id, position, service_id, price)
			VALUES ($1,$2,$3,$4,$5)
		`, line.ID, b.ID, i, line.ServiceID, nullFloat(line.Price)); err != nil {
			return nil, lineError(err, "service")
		}
	}
	for i, line := range b.Products {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO booking_products (id, booking_id, position, product_id, qty, price_override)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, b.ID, i, line.ProductID, line.Qty, nullFloat(line.PriceOverride)); err != nil {
			return nil, lineError(err, "product")
		}
	}
	for i, line := range b.Broken {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO booking_broken_items (id, booking_id, position, product_id, qty, cost_override)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, b.ID, i, line.ProductID, line.Qty, nullFloat(line.CostOverride)); err != nil {
			return nil, lineError(err, "broken item")
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	if b.Services == nil {
		b.Services = []domain.BookingService{}
	}
	if b.Products == nil {
		b.Products = []domain.BookingProduct{}
	}
	if b.Broken == nil {
		b.Broken = []domain.BookingBrokenItem{}
	}
	return &b, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM bookings WHERE id = $1`, id)
}

func (s *Store) ListAdditionalCosts(ctx context.Context, from time.Time, to time.Time) ([]domain.AdditionalCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, category, amount, incurred_on, notes, created_at
		FROM additional_costs
		WHERE incurred_on >= $1::date AND incurred_on < $2::date
		ORDER BY incurred_on, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	costs := make([]domain.AdditionalCost, 0, 32)
	for rows.Next() {
		c, err := scanCost(rows)
		if err != nil {
			return nil, err
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return costs, nil
}

func (s *Store) GetAdditionalCost(ctx context.Context, id string) (*domain.AdditionalCost, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, category, amount, incurred_on, notes, created_at
		FROM additional_costs
		WHERE id = $1
	`, id)
	c, err := scanCost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateAdditionalCost(ctx context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error) {
	if !xid.Valid(cost.ID) || strings.TrimSpace(cost.Description) == "" || cost.Amount < 0 {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO additional_costs (id, description, category, amount, incurred_on, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, cost.ID, cost.Description, cost.Category, cost.Amount, cost.IncurredOn, nullIfEmpty(cost.Notes), cost.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := cost
	return &created, nil
}

func (s *Store) UpdateAdditionalCost(ctx context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error) {
	if !xid.Valid(cost.ID) {
		return nil, store.ErrNotFound
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE additional_costs
		SET description = $2, category = $3, amount = $4, incurred_on = $5, notes = $6
		WHERE id = $1
		RETURNING created_at
	`, cost.ID, cost.Description, cost.Category, cost.Amount, cost.IncurredOn, nullIfEmpty(cost.Notes)).Scan(&cost.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	cost.CreatedAt = cost.CreatedAt.UTC()
	return &cost, nil
}

func (s *Store) DeleteAdditionalCost(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM additional_costs WHERE id = $1`, id)
}

// loadLines fills the three line collections of every booking in place.
// Bookings always come back with non-nil slices.
func loadLines(ctx context.Context, q queryer, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, len(bookings))
	index := make(map[string]int, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
		index[bookings[i].ID] = i
		bookings[i].Services = []domain.BookingService{}
		bookings[i].Products = []domain.BookingProduct{}
		bookings[i].Broken = []domain.BookingBrokenItem{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT booking_id, id, service_id, price
		FROM booking_services
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var bookingID string
		var line domain.BookingService
		var price sql.NullFloat64
		if err := rows.Scan(&bookingID, &line.ID, &line.ServiceID, &price); err != nil {
			_ = rows.Close()
			return err
		}
		line.Price = floatPtr(price)
		i := index[bookingID]
		bookings[i].Services = append(bookings[i].Services, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT booking_id, id, product_id, qty, price_override
		FROM booking_products
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var bookingID string
		var line domain.BookingProduct
		var override sql.NullFloat64
		if err := rows.Scan(&bookingID, &line.ID, &line.ProductID, &line.Qty, &override); err != nil {
			_ = rows.Close()
			return err
		}
		line.PriceOverride = floatPtr(override)
		i := index[bookingID]
		bookings[i].Products = append(bookings[i].Products, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT booking_id, id, product_id, qty, cost_override
		FROM booking_broken_items
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID string
		var line domain.BookingBrokenItem
		var override sql.NullFloat64
		if err := rows.Scan(&bookingID, &line.ID, &line.ProductID, &line.Qty, &override); err != nil {
			return err
		}
		line.CostOverride = floatPtr(override)
		i := index[bookingID]
		bookings[i].Broken = append(bookings[i].Broken, line)
	}
	return rows.Err()
}

func scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	var notes, paymentMethod sql.NullString
	var travelFee, totalPaid sql.NullFloat64
	err := row.Scan(
		&b.ID, &b.ClientID, &b.StartsAt, &b.DurationMinutes, &b.Status, &notes,
		&b.IsModel, &b.TravelEnabled, &travelFee, &b.TaxEnabled, &b.BooksyFeeEnabled,
		&b.BrokenEarringEnabled, &totalPaid, &paymentMethod,
		&b.Snapshot.ServicePrice, &b.Snapshot.ProductRevenue, &b.Snapshot.TotalCosts, &b.Snapshot.Profit,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Notes = notes.String
	b.PaymentMethod = paymentMethod.String
	b.TravelFee = floatPtr(travelFee)
	b.TotalPaid = floatPtr(totalPaid)
	b.StartsAt = b.StartsAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func scanCost(row rowScanner) (domain.AdditionalCost, error) {
	var c domain.AdditionalCost
	var notes sql.NullString
	if err := row.Scan(&c.ID, &c.Description, &c.Category, &c.Amount, &c.IncurredOn, &notes, &c.CreatedAt); err != nil {
		return domain.AdditionalCost{}, err
	}
	c.Notes = notes.String
	c.IncurredOn = c.IncurredOn.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func lineError(err error, kind string) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown %s reference", store.ErrInvalidInput, kind)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: duplicate %s line id", store.ErrConflict, kind)
	}
	return err
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
)

func (s *Store) ListBookings(_ context.Context, from time.Time, to time.Time) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Booking, 0, 32)
	for _, b := range s.bookings {
		if b.StartsAt.Before(from) || !b.StartsAt.Before(to) {
			continue
		}
		result = append(result, cloneBooking(b))
	}
	slices.SortFunc(result, func(a, b domain.Booking) int {
		if a.StartsAt.Equal(b.StartsAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.StartsAt.Before(b.StartsAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneBooking(b)
	return &dup, nil
}

func (s *Store) SaveBooking(_ context.Context, booking domain.Booking) (*domain.Booking, error) {
	if booking.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[booking.ClientID]; !ok {
		return nil, store.ErrInvalidInput
	}
	for _, line := range booking.Services {
		if line.ID == "" {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.services[line.ServiceID]; !ok {
			return nil, store.ErrInvalidInput
		}
	}
	for _, line := range booking.Products {
		if line.ID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.products[line.ProductID]; !ok {
			return nil, store.ErrInvalidInput
		}
	}
	for _, line := range booking.Broken {
		if line.ID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.products[line.ProductID]; !ok {
			return nil, store.ErrInvalidInput
		}
	}

	if err := s.checkLineIDs(booking); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing, ok := s.bookings[booking.ID]; ok {
		booking.CreatedAt = existing.CreatedAt
	} else if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	// the stored copy owns its line slices, so the old set is dropped whole
	stored := cloneBooking(booking)
	s.bookings[booking.ID] = stored

	saved := cloneBooking(stored)
	return &saved, nil
}

// checkLineIDs rejects line ids already owned by another booking. Each
// line collection has its own id space. Callers hold s.mu.
func (s *Store) checkLineIDs(booking domain.Booking) error {
	taken := map[string]map[string]bool{"service": {}, "product": {}, "broken": {}}
	for id, other := range s.bookings {
		if id == booking.ID {
			continue
		}
		for _, line := range other.Services {
			taken["service"][line.ID] = true
		}
		for _, line := range other.Products {
			taken["product"][line.ID] = true
		}
		for _, line := range other.Broken {
			taken["broken"][line.ID] = true
		}
	}

	for _, line := range booking.Services {
		if taken["service"][line.ID] {
			return fmt.Errorf("%w: duplicate service line id", store.ErrConflict)
		}
	}
	for _, line := range booking.Products {
		if taken["product"][line.ID] {
			return fmt.Errorf("%w: duplicate product line id", store.ErrConflict)
		}
	}
	for _, line := range booking.Broken {
		if taken["broken"][line.ID] {
			return fmt.Errorf("%w: duplicate broken line id", store.ErrConflict)
		}
	}
	return nil
}

func (s *Store) DeleteBooking(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *Store) ListAdditionalCosts(_ context.Context, from time.Time, to time.Time) ([]domain.AdditionalCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AdditionalCost, 0, len(s.costs))
	for _, c := range s.costs {
		if c.IncurredOn.Before(from) || !c.IncurredOn.Before(to) {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.AdditionalCost) int {
		if a.IncurredOn.Equal(b.IncurredOn) {
			return cmpString(a.ID, b.ID)
		}
		if a.IncurredOn.Before(b.IncurredOn) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetAdditionalCost(_ context.Context, id string) (*domain.AdditionalCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.costs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateAdditionalCost(_ context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error) {
	if cost.ID == "" || cost.Description == "" || cost.Amount < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.costs[cost.ID]; exists {
		return nil, store.ErrConflict
	}
	s.costs[cost.ID] = cost
	created := cost
	return &created, nil
}

func (s *Store) UpdateAdditionalCost(_ context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.costs[cost.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cost.CreatedAt = existing.CreatedAt
	s.costs[cost.ID] = cost
	updated := cost
	return &updated, nil
}

func (s *Store) DeleteAdditionalCost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.costs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.costs, id)
	return nil
}

func cloneBooking(src domain.Booking) domain.Booking {
	dup := src
	dup.TravelFee = cloneFloat(src.TravelFee)
	dup.TotalPaid = cloneFloat(src.TotalPaid)

	dup.Services = make([]domain.BookingService, len(src.Services))
	for i, line := range src.Services {
		line.Price = cloneFloat(line.Price)
		dup.Services[i] = line
	}
	dup.Products = make([]domain.BookingProduct, len(src.Products))
	for i, line := range src.Products {
		line.PriceOverride = cloneFloat(line.PriceOverride)
		dup.Products[i] = line
	}
	dup.Broken = make([]domain.BookingBrokenItem, len(src.Broken))
	for i, line := range src.Broken {
		line.CostOverride = cloneFloat(line.CostOverride)
		dup.Broken[i] = line
	}
	return dup
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}

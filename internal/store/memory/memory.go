package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

// Fixed ids of the seeded demo rows.
const (
	SeedClientID       = "a3d5e7f9-1b2c-4d6e-8f0a-2b4c6d8e0001"
	SeedSecondClientID = "a3d5e7f9-1b2c-4d6e-8f0a-2b4c6d8e0002"
	SeedLobeServiceID  = "7b0f7f4e-2c1a-4a55-9a0e-1f3c5d2a9001"
	SeedHelixServiceID = "7b0f7f4e-2c1a-4a55-9a0e-1f3c5d2a9002"
	SeedStudProductID  = "5c7e2d1a-8b44-4f0e-b6a2-3d9e0c7f1001"
	SeedHoopProductID  = "5c7e2d1a-8b44-4f0e-b6a2-3d9e0c7f1002"
	SeedBookingID      = "e1f2a3b4-c5d6-4e7f-8a9b-0c1d2e3f0001"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu              sync.RWMutex
	clients         map[string]domain.Client
	services        map[string]domain.Service
	products        map[string]domain.Product
	bookings        map[string]domain.Booking
	costs           map[string]domain.AdditionalCost
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		clients:         make(map[string]domain.Client),
		services:        make(map[string]domain.Service),
		products:        make(map[string]domain.Product),
		bookings:        make(map[string]domain.Booking),
		costs:           make(map[string]domain.AdditionalCost),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD, falling back to dev
// defaults with a warning. Postgres deployments never use these.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a small demo catalog, two clients and
// one completed booking in the current month.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, svc := range []domain.Service{
		{ID: SeedLobeServiceID, Name: "Lobe Piercing", BasePrice: 80, DurationMinutes: 30},
		{ID: SeedHelixServiceID, Name: "Helix Piercing", BasePrice: 65, DurationMinutes: 30},
		{ID: "7b0f7f4e-2c1a-4a55-9a0e-1f3c5d2a9003", Name: "Nostril Piercing", BasePrice: 70, DurationMinutes: 30},
		{ID: "7b0f7f4e-2c1a-4a55-9a0e-1f3c5d2a9004", Name: "Ear Styling Consultation", BasePrice: 25, DurationMinutes: 20},
	} {
		svc.Active = true
		svc.CreatedAt = now
		s.services[svc.ID] = svc
	}

	for _, p := range []domain.Product{
		{ID: SeedStudProductID, Name: "Titanium Flat-Back Stud", Category: "earring", SalePrice: 40, Cost: 15, StockQty: 24},
		{ID: SeedHoopProductID, Name: "14k Gold Clicker Hoop", Category: "earring", SalePrice: 120, Cost: 55, StockQty: 6},
		{ID: "5c7e2d1a-8b44-4f0e-b6a2-3d9e0c7f1003", Name: "Opal Labret Top", Category: "earring", SalePrice: 65, Cost: 22, StockQty: 2},
		{ID: "5c7e2d1a-8b44-4f0e-b6a2-3d9e0c7f1004", Name: "Saline Aftercare Spray", Category: "aftercare", SalePrice: 18, Cost: 6, StockQty: 30},
	} {
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	for _, c := range []domain.Client{
		{ID: SeedClientID, Name: "Maya Chen", Phone: "+1 555 0101", Email: "maya@example.com"},
		{ID: SeedSecondClientID, Name: "Jordan Alvarez", Phone: "+1 555 0102"},
	} {
		c.CreatedAt = now
		c.UpdatedAt = now
		s.clients[c.ID] = c
	}

	travel := 20.0
	paid := 140.0
	price := 80.0
	startsAt := time.Date(now.Year(), now.Month(), 1, 14, 0, 0, 0, time.UTC)
	s.bookings[SeedBookingID] = domain.Booking{
		ID:               SeedBookingID,
		ClientID:         SeedClientID,
		StartsAt:         startsAt,
		DurationMinutes:  30,
		Status:           domain.BookingCompleted,
		TravelEnabled:    true,
		TravelFee:        &travel,
		TaxEnabled:       true,
		BooksyFeeEnabled: true,
		TotalPaid:        &paid,
		PaymentMethod:    "card",
		Services:         []domain.BookingService{{ID: "b5e6f7a8-0000-4000-8000-000000000001", ServiceID: SeedLobeServiceID, Price: &price}},
		Products:         []domain.BookingProduct{{ID: "b5e6f7a8-0000-4000-8000-000000000002", ProductID: SeedStudProductID, Qty: 1}},
		Broken:           []domain.BookingBrokenItem{},
		Snapshot:         domain.BookingSnapshot{ServicePrice: 80, ProductRevenue: 40, TotalCosts: 61.34, Profit: 78.66},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListClients(_ context.Context, search string) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Email), needle) &&
			!strings.Contains(c.Phone, needle) {
			continue
		}
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})
	return clients, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || strings.TrimSpace(client.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ID]; exists {
		return nil, store.ErrConflict
	}
	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clients[client.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	client.CreatedAt = existing.CreatedAt
	s.clients[client.ID] = client
	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return store.ErrNotFound
	}
	for _, b := range s.bookings {
		if b.ClientID == id {
			return store.ErrConflict
		}
	}
	delete(s.clients, id)
	return nil
}

func (s *Store) ListServices(_ context.Context, includeInactive bool) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if !svc.Active && !includeInactive {
			continue
		}
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.Service) int {
		return cmpString(a.Name, b.Name)
	})
	return services, nil
}

func (s *Store) GetServicesByIDs(_ context.Context, ids []string) (map[string]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Service, len(ids))
	for _, id := range ids {
		if svc, ok := s.services[id]; ok {
			result[id] = svc
		}
	}
	return result, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	if svc.ID == "" || strings.TrimSpace(svc.Name) == "" || svc.BasePrice < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.services {
		if strings.EqualFold(existing.Name, svc.Name) {
			return nil, store.ErrConflict
		}
	}
	s.services[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) UpdateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.services[svc.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.services {
		if id != svc.ID && strings.EqualFold(other.Name, svc.Name) {
			return nil, store.ErrConflict
		}
	}
	svc.CreatedAt = existing.CreatedAt
	s.services[svc.ID] = svc
	updated := svc
	return &updated, nil
}

func (s *Store) DeleteService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return store.ErrNotFound
	}
	for _, b := range s.bookings {
		for _, line := range b.Services {
			if line.ServiceID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.services, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.SalePrice < 0 || product.Cost < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// stock only moves through AdjustStock
	product.StockQty = existing.StockQty
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.StockQty+delta < 0 {
		return nil, store.ErrInvalidInput
	}
	p.StockQty += delta
	s.products[id] = p
	updated := p
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, b := range s.bookings {
		for _, line := range b.Products {
			if line.ProductID == id {
				return store.ErrConflict
			}
		}
		for _, line := range b.Broken {
			if line.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

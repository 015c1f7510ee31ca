package service

import (
	"context"
	"fmt"
	"strings"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

const defaultProductCategory = "earring"

func (s *Service) ListClients(ctx context.Context, search string) ([]domain.Client, error) {
	return s.repo.ListClients(ctx, search)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	client := domain.Client{
		ID:    xid.New(),
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
		Notes: strings.TrimSpace(req.Notes),
	}
	if err := validateClient(client); err != nil {
		return domain.Client{}, err
	}
	now := s.now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_create", "client", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := validateClient(updated); err != nil {
		return domain.Client{}, err
	}
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateClient(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_update", "client", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "client_delete", "client", id, "")
	return nil
}

func validateClient(c domain.Client) error {
	problems := fieldErrors{}
	if c.Name == "" {
		problems.add("name", "name is required")
	}
	if c.Email != "" && (!strings.Contains(c.Email, "@") || strings.ContainsAny(c.Email, " \t")) {
		problems.add("email", "email is not valid")
	}
	return problems.err()
}

func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]domain.Service, error) {
	return s.repo.ListServices(ctx, includeInactive)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Service{}, err
	}

	svc := domain.Service{
		ID:              xid.New(),
		Name:            strings.TrimSpace(req.Name),
		BasePrice:       req.BasePrice,
		DurationMinutes: req.DurationMinutes,
		Active:          true,
		CreatedAt:       s.now().UTC(),
	}
	if err := validateService(svc); err != nil {
		return domain.Service{}, err
	}

	created, err := s.repo.CreateService(ctx, svc)
	if err != nil {
		return domain.Service{}, err
	}

	s.logAudit(ctx, "service_create", "service", created.ID, fmt.Sprintf("name=%s,price=%.2f", created.Name, created.BasePrice))
	return *created, nil
}

func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Service{}, err
	}

	catalog, err := s.repo.GetServicesByIDs(ctx, []string{id})
	if err != nil {
		return domain.Service{}, err
	}
	existing, ok := catalog[id]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}

	updated := existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.BasePrice != nil {
		updated.BasePrice = *req.BasePrice
	}
	if req.DurationMinutes != nil {
		updated.DurationMinutes = *req.DurationMinutes
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateService(updated); err != nil {
		return domain.Service{}, err
	}

	saved, err := s.repo.UpdateService(ctx, updated)
	if err != nil {
		return domain.Service{}, err
	}

	s.logAudit(ctx, "service_update", "service", saved.ID, fmt.Sprintf("active=%t,price=%.2f", saved.Active, saved.BasePrice))
	// catalog prices feed the dashboard for every booking that uses them
	s.invalidateDashboards(ctx)
	return *saved, nil
}

func (s *Service) DeleteService(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteService(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "service_delete", "service", id, "")
	return nil
}

func validateService(svc domain.Service) error {
	problems := fieldErrors{}
	if svc.Name == "" {
		problems.add("name", "name is required")
	}
	if svc.BasePrice < 0 {
		problems.add("base_price", "must be at least 0")
	}
	if svc.DurationMinutes < 0 {
		problems.add("duration_minutes", "must be at least 0")
	}
	return problems.err()
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:        xid.New(),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.ToLower(strings.TrimSpace(req.Category)),
		SalePrice: req.SalePrice,
		Cost:      req.Cost,
		StockQty:  req.StockQty,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if product.Category == "" {
		product.Category = defaultProductCategory
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%.2f,cost=%.2f,stock=%d", created.Name, created.SalePrice, created.Cost, created.StockQty))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Product{}, err
	}

	catalog, err := s.repo.GetProductsByIDs(ctx, []string{id})
	if err != nil {
		return domain.Product{}, err
	}
	existing, ok := catalog[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}

	updated := existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
		if updated.Category == "" {
			updated.Category = defaultProductCategory
		}
	}
	if req.SalePrice != nil {
		updated.SalePrice = *req.SalePrice
	}
	if req.Cost != nil {
		updated.Cost = *req.Cost
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%.2f,cost=%.2f", saved.Active, saved.SalePrice, saved.Cost))
	s.invalidateDashboards(ctx)
	return *saved, nil
}

// AdjustStock moves on-hand quantity by delta. Booking saves never touch
// stock; counts are corrected here by hand.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Product, error) {
	if req.Delta == 0 {
		return domain.Product{}, &ValidationError{Fields: map[string]string{"delta": "must not be 0"}}
	}

	saved, err := s.repo.AdjustStock(ctx, id, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", saved.ID, fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, saved.StockQty, strings.TrimSpace(req.Reason)))
	s.invalidateDashboards(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	s.invalidateDashboards(ctx)
	return nil
}

// LowStock lists active products at or below the configured threshold.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0)
	for _, p := range products {
		if p.StockQty <= s.lowStockThreshold {
			low = append(low, p)
		}
	}
	return low, nil
}

func validateProduct(p domain.Product) error {
	problems := fieldErrors{}
	if p.Name == "" {
		problems.add("name", "name is required")
	}
	if p.SalePrice < 0 {
		problems.add("sale_price", "must be at least 0")
	}
	if p.Cost < 0.01 {
		problems.add("cost", "must be at least 0.01")
	}
	if p.StockQty < 0 {
		problems.add("stock_qty", "must be at least 0")
	}
	return problems.err()
}

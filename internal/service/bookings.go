package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/finance"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

type catalog struct {
	services map[string]domain.Service
	products map[string]domain.Product
}

func (s *Service) loadCatalog(ctx context.Context, bookings ...domain.Booking) (catalog, error) {
	var serviceIDs, productIDs []string
	for _, b := range bookings {
		for _, line := range b.Services {
			serviceIDs = append(serviceIDs, line.ServiceID)
		}
		for _, line := range b.Products {
			productIDs = append(productIDs, line.ProductID)
		}
		for _, line := range b.Broken {
			productIDs = append(productIDs, line.ProductID)
		}
	}

	services, err := s.repo.GetServicesByIDs(ctx, compactIDs(serviceIDs))
	if err != nil {
		return catalog{}, err
	}
	products, err := s.repo.GetProductsByIDs(ctx, compactIDs(productIDs))
	if err != nil {
		return catalog{}, err
	}
	return catalog{services: services, products: products}, nil
}

// compactIDs drops blanks and duplicates. The postgres store casts ids to
// uuid, so malformed ones are dropped here too and simply resolve to
// nothing.
func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || !xid.Valid(id) || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// financeInput joins booking lines with catalog prices. Lines whose
// catalog row is missing count at their overrides only.
func financeInput(b domain.Booking, cat catalog) finance.Booking {
	in := finance.Booking{
		IsModel:              b.IsModel,
		TravelEnabled:        b.TravelEnabled,
		TravelFee:            b.TravelFee,
		TaxEnabled:           b.TaxEnabled,
		BooksyFeeEnabled:     b.BooksyFeeEnabled,
		BrokenEarringEnabled: b.BrokenEarringEnabled,
		TotalPaid:            b.TotalPaid,
		Services:             make([]finance.ServiceLine, 0, len(b.Services)),
		Products:             make([]finance.ProductLine, 0, len(b.Products)),
		Broken:               make([]finance.BrokenLine, 0, len(b.Broken)),
	}
	for _, line := range b.Services {
		in.Services = append(in.Services, finance.ServiceLine{Price: line.Price})
	}
	for _, line := range b.Products {
		p := cat.products[line.ProductID]
		in.Products = append(in.Products, finance.ProductLine{
			Qty:           line.Qty,
			PriceOverride: line.PriceOverride,
			SalePrice:     p.SalePrice,
			Cost:          p.Cost,
		})
	}
	for _, line := range b.Broken {
		p := cat.products[line.ProductID]
		in.Broken = append(in.Broken, finance.BrokenLine{
			Qty:          line.Qty,
			CostOverride: line.CostOverride,
			Cost:         p.Cost,
		})
	}
	return in
}

func financialView(sum finance.Summary) domain.FinancialView {
	return domain.FinancialView{
		Summary:      sum,
		ProfitsMatch: sum.ProfitsMatch(),
		Profit:       sum.DisplayProfit(),
	}
}

func bookingFromRequest(req domain.BookingRequest) domain.Booking {
	b := domain.Booking{
		ClientID:             strings.TrimSpace(req.ClientID),
		StartsAt:             req.StartsAt.UTC(),
		Status:               strings.ToLower(strings.TrimSpace(req.Status)),
		Notes:                strings.TrimSpace(req.Notes),
		IsModel:              req.IsModel,
		TravelEnabled:        req.TravelEnabled,
		TravelFee:            req.TravelFee,
		TaxEnabled:           req.TaxEnabled,
		BooksyFeeEnabled:     req.BooksyFeeEnabled,
		BrokenEarringEnabled: req.BrokenEarringEnabled,
		TotalPaid:            req.TotalPaid,
		PaymentMethod:        strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Services:             make([]domain.BookingService, 0, len(req.Services)),
		Products:             make([]domain.BookingProduct, 0, len(req.Products)),
		Broken:               make([]domain.BookingBrokenItem, 0, len(req.Broken)),
	}
	for _, line := range req.Services {
		line.ID = strings.TrimSpace(line.ID)
		line.ServiceID = strings.TrimSpace(line.ServiceID)
		b.Services = append(b.Services, line)
	}
	for _, line := range req.Products {
		line.ID = strings.TrimSpace(line.ID)
		line.ProductID = strings.TrimSpace(line.ProductID)
		b.Products = append(b.Products, line)
	}
	for _, line := range req.Broken {
		line.ID = strings.TrimSpace(line.ID)
		line.ProductID = strings.TrimSpace(line.ProductID)
		b.Broken = append(b.Broken, line)
	}
	return b
}

// PreviewBooking computes the live figures for an unsaved form. It never
// rejects input: unknown catalog rows and missing values count as zero.
func (s *Service) PreviewBooking(ctx context.Context, req domain.BookingRequest) (domain.FinancialView, error) {
	b := bookingFromRequest(req)
	cat, err := s.loadCatalog(ctx, b)
	if err != nil {
		return domain.FinancialView{}, err
	}
	// an untouched price field shows the base price, as a save would store it
	for i, line := range b.Services {
		if svc, ok := cat.services[line.ServiceID]; ok && line.Price == nil {
			base := svc.BasePrice
			b.Services[i].Price = &base
		}
	}
	return financialView(finance.Compute(financeInput(b, cat))), nil
}

// ModelPricing returns service lines repriced for the given model flag:
// all zero when on, catalog base prices when off.
func (s *Service) ModelPricing(ctx context.Context, req domain.ModelPricingRequest) (domain.ModelPricingResponse, error) {
	b := domain.Booking{Services: req.Services}
	cat, err := s.loadCatalog(ctx, b)
	if err != nil {
		return domain.ModelPricingResponse{}, err
	}

	lines := make([]finance.ServiceLine, len(req.Services))
	bases := make([]*float64, len(req.Services))
	for i, line := range req.Services {
		lines[i] = finance.ServiceLine{Price: line.Price}
		if svc, ok := cat.services[line.ServiceID]; ok {
			base := svc.BasePrice
			bases[i] = &base
		}
	}

	repriced := finance.ApplyModelPricing(lines, req.IsModel, bases)
	out := make([]domain.BookingService, len(req.Services))
	for i, line := range req.Services {
		line.Price = repriced[i].Price
		out[i] = line
	}
	return domain.ModelPricingResponse{IsModel: req.IsModel, Services: out}, nil
}

func (s *Service) CreateBooking(ctx context.Context, req domain.BookingRequest) (domain.BookingDetail, error) {
	return s.saveBooking(ctx, "", req)
}

// UpdateBooking replaces the booking and all of its line collections.
// Lines left out of req are removed.
func (s *Service) UpdateBooking(ctx context.Context, id string, req domain.BookingRequest) (domain.BookingDetail, error) {
	return s.saveBooking(ctx, id, req)
}

func (s *Service) saveBooking(ctx context.Context, id string, req domain.BookingRequest) (domain.BookingDetail, error) {
	action := "booking_create"
	var existing *domain.Booking
	if id != "" {
		found, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return domain.BookingDetail{}, err
		}
		existing = found
		action = "booking_update"
	}

	b := bookingFromRequest(req)
	cat, err := s.loadCatalog(ctx, b)
	if err != nil {
		return domain.BookingDetail{}, err
	}

	client, err := s.normalizeBooking(ctx, &b, cat, existing)
	if err != nil {
		return domain.BookingDetail{}, err
	}

	if existing != nil {
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
	} else {
		b.ID = xid.New()
		b.CreatedAt = s.now().UTC()
	}
	b.UpdatedAt = s.now().UTC()

	sum := finance.Compute(financeInput(b, cat))
	b.Snapshot = domain.BookingSnapshot{
		ServicePrice:   sum.ServiceRevenue,
		ProductRevenue: sum.ProductRevenue,
		TotalCosts:     sum.TotalCosts,
		Profit:         sum.RealProfit,
	}

	saved, err := s.repo.SaveBooking(ctx, b)
	if err != nil {
		return domain.BookingDetail{}, err
	}

	s.logAudit(ctx, action, "booking", saved.ID, fmt.Sprintf("client=%s,status=%s,paid=%s,profit=%.2f", saved.ClientID, saved.Status, describeMoney(saved.TotalPaid), saved.Snapshot.Profit))
	s.invalidateDashboards(ctx)
	return buildDetail(*saved, client, cat), nil
}

// normalizeBooking validates b against the catalog and fills in what a
// save needs: line ids, default prices, status and duration. Inactive
// services and products are refused unless existing already uses them.
func (s *Service) normalizeBooking(ctx context.Context, b *domain.Booking, cat catalog, existing *domain.Booking) (domain.Client, error) {
	problems := fieldErrors{}
	keptServices, keptProducts := map[string]bool{}, map[string]bool{}
	if existing != nil {
		for _, line := range existing.Services {
			keptServices[line.ServiceID] = true
		}
		for _, line := range existing.Products {
			keptProducts[line.ProductID] = true
		}
		for _, line := range existing.Broken {
			keptProducts[line.ProductID] = true
		}
	}
	var client domain.Client

	if b.ClientID == "" {
		problems.add("client_id", "client is required")
	} else if !xid.Valid(b.ClientID) {
		problems.add("client_id", "client not found")
	} else {
		found, err := s.repo.GetClient(ctx, b.ClientID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			problems.add("client_id", "client not found")
		case err != nil:
			return domain.Client{}, err
		default:
			client = *found
		}
	}

	if b.StartsAt.IsZero() {
		problems.add("starts_at", "start time is required")
	}
	if b.Status == "" {
		b.Status = domain.BookingScheduled
	}
	if !slices.Contains([]string{domain.BookingScheduled, domain.BookingCompleted, domain.BookingCancelled}, b.Status) {
		problems.add("status", "must be scheduled, completed or cancelled")
	}
	if b.PaymentMethod != "" && !slices.Contains(domain.PaymentMethods, b.PaymentMethod) {
		problems.add("payment_method", "must be one of "+strings.Join(domain.PaymentMethods, ", "))
	}
	if b.TravelFee != nil && *b.TravelFee < 0 {
		problems.add("travel_fee", "must be at least 0")
	}
	if b.TotalPaid != nil && *b.TotalPaid < 0 {
		problems.add("total_paid", "must be at least 0")
	}

	seenIDs := map[string]bool{}
	lineID := func(field string, id string) string {
		if id == "" {
			return xid.New()
		}
		if !xid.Valid(id) {
			problems.add(field, "invalid line id")
			return id
		}
		if seenIDs[id] {
			problems.add(field, "duplicate line id")
		}
		seenIDs[id] = true
		return id
	}

	if len(b.Services) == 0 {
		problems.add("services", "at least one service is required")
	}
	b.DurationMinutes = 0
	for i := range b.Services {
		line := &b.Services[i]
		prefix := fmt.Sprintf("services[%d]", i)
		line.ID = lineID(prefix+".id", line.ID)
		svc, ok := cat.services[line.ServiceID]
		if !ok {
			problems.add(prefix+".service_id", "service not found")
			continue
		}
		if !svc.Active && !keptServices[line.ServiceID] {
			problems.add(prefix+".service_id", "service is inactive")
		}
		b.DurationMinutes += svc.DurationMinutes
		if line.Price != nil && *line.Price < 0 {
			problems.add(prefix+".price", "must be at least 0")
		}
		switch {
		case b.IsModel:
			zero := 0.0
			line.Price = &zero
		case line.Price == nil:
			base := svc.BasePrice
			line.Price = &base
		}
	}

	if len(b.Products) == 0 {
		problems.add("products", "at least one product is required")
	}
	for i := range b.Products {
		line := &b.Products[i]
		prefix := fmt.Sprintf("products[%d]", i)
		line.ID = lineID(prefix+".id", line.ID)
		if p, ok := cat.products[line.ProductID]; !ok {
			problems.add(prefix+".product_id", "product not found")
		} else if !p.Active && !keptProducts[line.ProductID] {
			problems.add(prefix+".product_id", "product is inactive")
		}
		if line.Qty < 1 {
			problems.add(prefix+".qty", "must be at least 1")
		}
		if line.PriceOverride != nil && *line.PriceOverride < 0 {
			problems.add(prefix+".price_override", "must be at least 0")
		}
	}

	for i := range b.Broken {
		line := &b.Broken[i]
		prefix := fmt.Sprintf("broken[%d]", i)
		line.ID = lineID(prefix+".id", line.ID)
		if p, ok := cat.products[line.ProductID]; !ok {
			problems.add(prefix+".product_id", "product not found")
		} else if !p.Active && !keptProducts[line.ProductID] {
			problems.add(prefix+".product_id", "product is inactive")
		}
		if line.Qty < 1 {
			problems.add(prefix+".qty", "must be at least 1")
		}
		if line.CostOverride != nil && *line.CostOverride < 0.01 {
			problems.add(prefix+".cost_override", "must be at least 0.01")
		}
	}

	if err := problems.err(); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

func buildDetail(b domain.Booking, client domain.Client, cat catalog) domain.BookingDetail {
	detail := domain.BookingDetail{
		Booking:    b,
		Client:     client,
		Services:   make([]domain.ServiceLineView, 0, len(b.Services)),
		Products:   make([]domain.ProductLineView, 0, len(b.Products)),
		Broken:     make([]domain.BrokenLineView, 0, len(b.Broken)),
		Financials: financialView(finance.Compute(financeInput(b, cat))),
	}

	for _, line := range b.Services {
		svc := cat.services[line.ServiceID]
		detail.Services = append(detail.Services, domain.ServiceLineView{
			BookingService:  line,
			Name:            svc.Name,
			BasePrice:       svc.BasePrice,
			PriceOverridden: !b.IsModel && finance.Overridden(line.Price, svc.BasePrice),
		})
	}
	for _, line := range b.Products {
		p := cat.products[line.ProductID]
		detail.Products = append(detail.Products, domain.ProductLineView{
			BookingProduct:  line,
			Name:            p.Name,
			SalePrice:       p.SalePrice,
			Cost:            p.Cost,
			PriceOverridden: finance.Overridden(line.PriceOverride, p.SalePrice),
		})
	}
	for _, line := range b.Broken {
		p := cat.products[line.ProductID]
		detail.Broken = append(detail.Broken, domain.BrokenLineView{
			BookingBrokenItem: line,
			Name:              p.Name,
			Cost:              p.Cost,
			CostOverridden:    finance.Overridden(line.CostOverride, p.Cost),
		})
	}
	return detail
}

func (s *Service) GetBooking(ctx context.Context, id string) (domain.BookingDetail, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return domain.BookingDetail{}, err
	}
	cat, err := s.loadCatalog(ctx, *b)
	if err != nil {
		return domain.BookingDetail{}, err
	}
	client, err := s.repo.GetClient(ctx, b.ClientID)
	if err != nil {
		return domain.BookingDetail{}, err
	}
	return buildDetail(*b, *client, cat), nil
}

// ListBookings returns bookings starting within the inclusive day range,
// each with its live financial figures.
func (s *Service) ListBookings(ctx context.Context, fromRaw string, toRaw string) (domain.BookingListResponse, error) {
	from, to, err := s.dateRange(fromRaw, toRaw)
	if err != nil {
		return domain.BookingListResponse{}, err
	}

	bookings, err := s.repo.ListBookings(ctx, from, to)
	if err != nil {
		return domain.BookingListResponse{}, err
	}
	cat, err := s.loadCatalog(ctx, bookings...)
	if err != nil {
		return domain.BookingListResponse{}, err
	}
	clients, err := s.repo.ListClients(ctx, "")
	if err != nil {
		return domain.BookingListResponse{}, err
	}
	names := make(map[string]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}

	items := make([]domain.BookingListItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, domain.BookingListItem{
			ID:            b.ID,
			ClientID:      b.ClientID,
			ClientName:    names[b.ClientID],
			StartsAt:      b.StartsAt,
			EndsAt:        b.StartsAt.Add(time.Duration(b.DurationMinutes) * time.Minute),
			Status:        b.Status,
			IsModel:       b.IsModel,
			PaymentMethod: b.PaymentMethod,
			Financials:    financialView(finance.Compute(financeInput(b, cat))),
		})
	}

	return domain.BookingListResponse{
		From:     formatDay(from),
		To:       formatDay(to.AddDate(0, 0, -1)),
		Bookings: items,
	}, nil
}

func (s *Service) DeleteBooking(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "booking_delete", "booking", id, "")
	s.invalidateDashboards(ctx)
	return nil
}

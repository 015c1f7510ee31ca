package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"studiobook/backend/internal/cache"
	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/finance"
	"studiobook/backend/internal/logger"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

const (
	defaultCostCategory = "other"
	topServicesLimit    = 5
	unspecifiedPayment  = "unspecified"
)

// civilDay pins a calendar date to UTC midnight, which is how cost dates
// are stored.
func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) ListAdditionalCosts(ctx context.Context, fromRaw string, toRaw string) ([]domain.AdditionalCost, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	from, to, err := s.dateRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAdditionalCosts(ctx, civilDay(from), civilDay(to))
}

func (s *Service) CreateAdditionalCost(ctx context.Context, req domain.AdditionalCostRequest) (domain.AdditionalCost, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.AdditionalCost{}, err
	}

	cost := domain.AdditionalCost{
		ID:          xid.New(),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		Amount:      req.Amount,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   s.now().UTC(),
	}
	problems := fieldErrors{}
	s.parseIncurredOn(&cost, req.IncurredOn, problems)
	validateCost(&cost, problems)
	if err := problems.err(); err != nil {
		return domain.AdditionalCost{}, err
	}

	created, err := s.repo.CreateAdditionalCost(ctx, cost)
	if err != nil {
		return domain.AdditionalCost{}, err
	}

	s.logAudit(ctx, "cost_create", "additional_cost", created.ID, fmt.Sprintf("category=%s,amount=%.2f,on=%s", created.Category, created.Amount, formatDay(created.IncurredOn)))
	s.invalidateDashboards(ctx)
	return *created, nil
}

func (s *Service) UpdateAdditionalCost(ctx context.Context, id string, req domain.AdditionalCostUpdateRequest) (domain.AdditionalCost, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.AdditionalCost{}, err
	}

	existing, err := s.repo.GetAdditionalCost(ctx, id)
	if err != nil {
		return domain.AdditionalCost{}, err
	}

	updated := *existing
	problems := fieldErrors{}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Amount != nil {
		updated.Amount = *req.Amount
	}
	if req.IncurredOn != nil {
		s.parseIncurredOn(&updated, *req.IncurredOn, problems)
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	validateCost(&updated, problems)
	if err := problems.err(); err != nil {
		return domain.AdditionalCost{}, err
	}

	saved, err := s.repo.UpdateAdditionalCost(ctx, updated)
	if err != nil {
		return domain.AdditionalCost{}, err
	}

	s.logAudit(ctx, "cost_update", "additional_cost", saved.ID, fmt.Sprintf("category=%s,amount=%.2f,on=%s", saved.Category, saved.Amount, formatDay(saved.IncurredOn)))
	s.invalidateDashboards(ctx)
	return *saved, nil
}

func (s *Service) DeleteAdditionalCost(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteAdditionalCost(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "cost_delete", "additional_cost", id, "")
	s.invalidateDashboards(ctx)
	return nil
}

func (s *Service) parseIncurredOn(cost *domain.AdditionalCost, raw string, problems fieldErrors) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		cost.IncurredOn = civilDay(s.now().In(s.loc))
		return
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		problems.add("incurred_on", "expected YYYY-MM-DD")
		return
	}
	cost.IncurredOn = day
}

func validateCost(cost *domain.AdditionalCost, problems fieldErrors) {
	if cost.Category == "" {
		cost.Category = defaultCostCategory
	}
	if cost.Description == "" {
		problems.add("description", "description is required")
	}
	if cost.Amount < 0.01 {
		problems.add("amount", "must be at least 0.01")
	}
}

type periodFigures struct {
	bookings  []domain.Booking
	summaries []finance.Summary
	cat       catalog
	totals    finance.Totals
}

// periodTotals aggregates every non-cancelled booking starting in [from, to).
func (s *Service) periodTotals(ctx context.Context, from time.Time, to time.Time) (periodFigures, error) {
	all, err := s.repo.ListBookings(ctx, from, to)
	if err != nil {
		return periodFigures{}, err
	}
	bookings := make([]domain.Booking, 0, len(all))
	for _, b := range all {
		if b.Status == domain.BookingCancelled {
			continue
		}
		bookings = append(bookings, b)
	}

	cat, err := s.loadCatalog(ctx, bookings...)
	if err != nil {
		return periodFigures{}, err
	}
	summaries := make([]finance.Summary, 0, len(bookings))
	for _, b := range bookings {
		summaries = append(summaries, finance.Compute(financeInput(b, cat)))
	}

	return periodFigures{
		bookings:  bookings,
		summaries: summaries,
		cat:       cat,
		totals:    finance.Aggregate(summaries),
	}, nil
}

// Dashboard aggregates the studio's figures for the inclusive day range and
// compares them with the period of equal length just before it.
func (s *Service) Dashboard(ctx context.Context, fromRaw string, toRaw string) (domain.Dashboard, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Dashboard{}, err
	}
	from, to, err := s.dateRange(fromRaw, toRaw)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return s.dashboard(ctx, from, to)
}

func (s *Service) dashboard(ctx context.Context, from time.Time, to time.Time) (domain.Dashboard, error) {
	log := logger.WithContext(ctx, s.log)
	key := cache.DashboardKey(formatDay(from), formatDay(to.AddDate(0, 0, -1)))
	gen := s.dashboardGen.Load()

	cached, ok, err := s.dashboards.Get(ctx, key)
	if err != nil {
		log.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	current, err := s.periodTotals(ctx, from, to)
	if err != nil {
		return domain.Dashboard{}, err
	}
	span := to.Sub(from)
	previous, err := s.periodTotals(ctx, from.Add(-span), from)
	if err != nil {
		return domain.Dashboard{}, err
	}

	costs, err := s.repo.ListAdditionalCosts(ctx, civilDay(from), civilDay(to))
	if err != nil {
		return domain.Dashboard{}, err
	}
	additional := 0.0
	byCategory := map[string]float64{}
	for _, c := range costs {
		additional += c.Amount
		byCategory[c.Category] += c.Amount
	}

	lowStock, err := s.LowStock(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	totals := current.totals
	d := domain.Dashboard{
		From:                 formatDay(from),
		To:                   formatDay(to.AddDate(0, 0, -1)),
		Totals:               totals,
		ProfitsMatch:         math.Abs(totals.ProjectedProfit-totals.RealProfit) < finance.ProfitTolerance,
		AdditionalCosts:      additional,
		NetProfit:            totals.RealProfit - additional,
		PreviousRevenue:      previous.totals.Revenue,
		PreviousRealProfit:   previous.totals.RealProfit,
		RevenueGrowthPercent: finance.GrowthPercent(totals.Revenue, previous.totals.Revenue),
		ProfitGrowthPercent:  finance.GrowthPercent(totals.RealProfit, previous.totals.RealProfit),
		ByPayment:            paymentBreakdown(current),
		TopServices:          topServices(current),
		CostsByCategory:      costBreakdown(byCategory),
		LowStock:             lowStock,
		GeneratedAt:          s.now().UTC(),
	}

	if s.dashboardGen.Load() != gen {
		log.Debug("dashboard changed while computing, not cached", zap.String("key", key))
		return d, nil
	}
	if err := s.dashboards.Set(ctx, key, &d, s.dashboardTTL); err != nil {
		log.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	// a write that landed between the check and Set must not leave d behind
	if s.dashboardGen.Load() != gen {
		if err := s.dashboards.Invalidate(ctx); err != nil {
			log.Warn("dashboard cache invalidation failed", zap.Error(err))
		}
	}
	return d, nil
}

// WarmDashboard rebuilds the cached dashboard for the current month. The
// scheduler calls it so the first owner visit of the day is fast.
func (s *Service) WarmDashboard(ctx context.Context) (domain.Dashboard, error) {
	from, to, err := s.dateRange("", "")
	if err != nil {
		return domain.Dashboard{}, err
	}
	s.dashboardGen.Add(1)
	if err := s.dashboards.Invalidate(ctx); err != nil {
		return domain.Dashboard{}, err
	}
	return s.dashboard(ctx, from, to)
}

func paymentBreakdown(p periodFigures) []domain.DashboardPayment {
	byMethod := map[string]*domain.DashboardPayment{}
	for i, b := range p.bookings {
		method := b.PaymentMethod
		if method == "" {
			method = unspecifiedPayment
		}
		row, ok := byMethod[method]
		if !ok {
			row = &domain.DashboardPayment{PaymentMethod: method}
			byMethod[method] = row
		}
		row.Bookings++
		row.TotalPaid += p.summaries[i].TotalPaid
	}

	out := make([]domain.DashboardPayment, 0, len(byMethod))
	for _, row := range byMethod {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPaid == out[j].TotalPaid {
			return out[i].PaymentMethod < out[j].PaymentMethod
		}
		return out[i].TotalPaid > out[j].TotalPaid
	})
	return out
}

func topServices(p periodFigures) []domain.DashboardService {
	byService := map[string]*domain.DashboardService{}
	for _, b := range p.bookings {
		for _, line := range b.Services {
			row, ok := byService[line.ServiceID]
			if !ok {
				row = &domain.DashboardService{ServiceID: line.ServiceID, Name: p.cat.services[line.ServiceID].Name}
				byService[line.ServiceID] = row
			}
			row.Count++
			if !b.IsModel && line.Price != nil {
				row.Revenue += *line.Price
			}
		}
	}

	out := make([]domain.DashboardService, 0, len(byService))
	for _, row := range byService {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue == out[j].Revenue {
			if out[i].Count == out[j].Count {
				return out[i].Name < out[j].Name
			}
			return out[i].Count > out[j].Count
		}
		return out[i].Revenue > out[j].Revenue
	})
	if len(out) > topServicesLimit {
		out = out[:topServicesLimit]
	}
	return out
}

func costBreakdown(byCategory map[string]float64) []domain.DashboardCostCategory {
	out := make([]domain.DashboardCostCategory, 0, len(byCategory))
	for category, amount := range byCategory {
		out = append(out, domain.DashboardCostCategory{Category: category, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount == out[j].Amount {
			return out[i].Category < out[j].Category
		}
		return out[i].Amount > out[j].Amount
	})
	return out
}

// BookingsForExport returns the detailed bookings of a range for the
// spreadsheet export, cancelled ones included.
func (s *Service) BookingsForExport(ctx context.Context, fromRaw string, toRaw string) ([]domain.BookingDetail, string, string, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, "", "", err
	}
	from, to, err := s.dateRange(fromRaw, toRaw)
	if err != nil {
		return nil, "", "", err
	}

	bookings, err := s.repo.ListBookings(ctx, from, to)
	if err != nil {
		return nil, "", "", err
	}
	cat, err := s.loadCatalog(ctx, bookings...)
	if err != nil {
		return nil, "", "", err
	}

	details := make([]domain.BookingDetail, 0, len(bookings))
	for _, b := range bookings {
		client, err := s.repo.GetClient(ctx, b.ClientID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, "", "", err
		}
		var c domain.Client
		if client != nil {
			c = *client
		}
		details = append(details, buildDetail(b, c, cat))
	}
	return details, formatDay(from), formatDay(to.AddDate(0, 0, -1)), nil
}

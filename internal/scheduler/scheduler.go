package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"studiobook/backend/internal/domain"
)

const jobTimeout = 2 * time.Minute

type Jobs interface {
	WarmDashboard(ctx context.Context) (domain.Dashboard, error)
	LowStock(ctx context.Context) ([]domain.Product, error)
}

type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	log  *zap.Logger
}

// New registers the daily summary job on spec (standard five-field cron,
// evaluated in loc). Nothing runs until Start.
func New(jobs Jobs, spec string, loc *time.Location, log *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		jobs: jobs,
		log:  log.Named("scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.DailySummary); err != nil {
		return nil, fmt.Errorf("schedule daily summary %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// DailySummary rebuilds the month's dashboard cache and logs what the
// owner would want to see first thing: the running totals and any
// product that needs reordering.
func (s *Scheduler) DailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	d, err := s.jobs.WarmDashboard(ctx)
	if err != nil {
		s.log.Error("dashboard warmup failed", zap.Error(err))
	} else {
		s.log.Info("daily summary",
			zap.String("from", d.From),
			zap.String("to", d.To),
			zap.Int("bookings", d.Totals.Bookings),
			zap.Float64("revenue", d.Totals.Revenue),
			zap.Float64("real_profit", d.Totals.RealProfit),
			zap.Float64("net_profit", d.NetProfit),
			zap.Duration("took", time.Since(started)),
		)
	}

	low, err := s.jobs.LowStock(ctx)
	if err != nil {
		s.log.Error("low stock check failed", zap.Error(err))
		return
	}
	for _, p := range low {
		s.log.Warn("low stock",
			zap.String("product_id", p.ID),
			zap.String("product", p.Name),
			zap.Int("stock_qty", p.StockQty),
		)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"studiobook/backend/internal/cache"
	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/logger"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/xid"
)

var ErrForbidden = errors.New("owner role required")

// ValidationError lists per-field problems so a form can show them next
// to the offending input. It matches store.ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidInput
}

type fieldErrors map[string]string

func (f fieldErrors) add(field string, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DashboardTTL      time.Duration
	LowStockThreshold int
	Location          *time.Location
	Logger            *zap.Logger
}

type Service struct {
	repo              store.Repository
	dashboards        cache.DashboardCache
	dashboardTTL      time.Duration
	lowStockThreshold int
	loc               *time.Location
	log               *zap.Logger
	now               func() time.Time

	// dashboardGen counts invalidations in this process so a dashboard
	// computed across a write is not cached.
	dashboardGen atomic.Uint64
}

func New(repo store.Repository, dashboards cache.DashboardCache, opts Options) *Service {
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if opts.DashboardTTL <= 0 {
		opts.DashboardTTL = 5 * time.Minute
	}
	if opts.LowStockThreshold < 1 {
		opts.LowStockThreshold = 3
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:              repo,
		dashboards:        dashboards,
		dashboardTTL:      opts.DashboardTTL,
		lowStockThreshold: opts.LowStockThreshold,
		loc:               opts.Location,
		log:               opts.Logger,
		now:               time.Now,
	}
}

func requireOwner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return ErrForbidden
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		logger.WithContext(ctx, s.log).Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) invalidateDashboards(ctx context.Context) {
	s.dashboardGen.Add(1)
	if err := s.dashboards.Invalidate(ctx); err != nil {
		logger.WithContext(ctx, s.log).Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

// ListAuditLogs returns entries for one calendar day (default: last 24h).
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{"date": "expected YYYY-MM-DD"}}
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// dateRange parses inclusive YYYY-MM-DD bounds in the studio time zone and
// returns a half-open [from, to) interval. Missing bounds default to the
// current calendar month.
func (s *Service) dateRange(fromRaw string, toRaw string) (time.Time, time.Time, error) {
	now := s.now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)
	problems := fieldErrors{}

	if strings.TrimSpace(fromRaw) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(fromRaw), s.loc)
		if err != nil {
			problems.add("from", "expected YYYY-MM-DD")
		} else {
			from = parsed
			if strings.TrimSpace(toRaw) == "" {
				to = from.AddDate(0, 1, 0)
			}
		}
	}
	if strings.TrimSpace(toRaw) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(toRaw), s.loc)
		if err != nil {
			problems.add("to", "expected YYYY-MM-DD")
		} else {
			to = parsed.AddDate(0, 0, 1)
		}
	}
	if err := problems.err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, &ValidationError{Fields: map[string]string{"to": "must not be before from"}}
	}
	if to.Sub(from) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, &ValidationError{Fields: map[string]string{"to": "range is limited to one year"}}
	}
	return from, to, nil
}

func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func describeMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

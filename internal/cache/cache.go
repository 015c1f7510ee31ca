package cache

import (
	"context"
	"time"

	"studiobook/backend/internal/domain"
)

// DashboardKeyPrefix namespaces every cached dashboard entry.
const DashboardKeyPrefix = "dashboard:"

type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.Dashboard, bool, error)
	Set(ctx context.Context, key string, value *domain.Dashboard, ttl time.Duration) error
	// Invalidate drops every cached dashboard. Called after any write that
	// moves booking or cost figures.
	Invalidate(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.Dashboard, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.Dashboard, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}

func DashboardKey(from string, to string) string {
	return DashboardKeyPrefix + from + ":" + to
}

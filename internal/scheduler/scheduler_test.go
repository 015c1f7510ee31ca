package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/finance"
)

type fakeJobs struct {
	warmErr error
	warmed  int
	low     []domain.Product
}

func (f *fakeJobs) WarmDashboard(_ context.Context) (domain.Dashboard, error) {
	f.warmed++
	if f.warmErr != nil {
		return domain.Dashboard{}, f.warmErr
	}
	return domain.Dashboard{From: "2026-03-01", To: "2026-03-31", Totals: finance.Totals{Bookings: 4, Revenue: 560}}, nil
}

func (f *fakeJobs) LowStock(_ context.Context) ([]domain.Product, error) {
	return f.low, nil
}

func TestDailySummaryLogsTotalsAndLowStock(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	jobs := &fakeJobs{low: []domain.Product{{ID: "p1", Name: "Opal Labret Top", StockQty: 1}}}

	s, err := New(jobs, "0 7 * * *", time.UTC, zap.New(core))
	require.NoError(t, err)

	s.DailySummary()

	assert.Equal(t, 1, jobs.warmed)
	summary := logs.FilterMessage("daily summary").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(4), summary[0].ContextMap()["bookings"])

	low := logs.FilterMessage("low stock").All()
	require.Len(t, low, 1)
	assert.Equal(t, "Opal Labret Top", low[0].ContextMap()["product"])
}

func TestDailySummaryKeepsGoingAfterWarmupFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	jobs := &fakeJobs{warmErr: errors.New("db down"), low: []domain.Product{{ID: "p1", Name: "Hoop"}}}

	s, err := New(jobs, "@daily", nil, zap.New(core))
	require.NoError(t, err)

	s.DailySummary()

	assert.Equal(t, 1, logs.FilterMessage("dashboard warmup failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("low stock").Len())
}

func TestNewRejectsBadCronExpression(t *testing.T) {
	_, err := New(&fakeJobs{}, "every morning", time.UTC, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeJobs{}, "0 7 * * *", time.UTC, nil)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/invoicecore/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls  int
	limits []int
	result invoicedomain.SweepResult
}

func (f *fakeSweeper) SweepOverdue(_ context.Context, limit int) (invoicedomain.SweepResult, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	return f.result, nil
}

type fakeReaper struct {
	cutoffs []time.Time
}

func (f *fakeReaper) AbandonStale(_ context.Context, olderThan time.Time, _ int) (int, error) {
	f.cutoffs = append(f.cutoffs, olderThan)
	return 1, nil
}

type fakeRelay struct {
	calls int
}

func (f *fakeRelay) ProcessPending(context.Context, time.Time) (int, error) {
	f.calls++
	return 0, nil
}

func TestRunOnceHonoursJobIntervals(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	sweeper := &fakeSweeper{result: invoicedomain.SweepResult{Scanned: 3, Marked: 2, Skipped: 1}}
	reaper := &fakeReaper{}
	relay := &fakeRelay{}

	s := newTestScheduler(t, clk, Config{
		SweepInterval:   5 * time.Minute,
		SweepBatch:      25,
		RelayInterval:   10 * time.Second,
		SessionInterval: time.Hour,
		SessionTTL:      24 * time.Hour,
	}, sweeper, reaper, relay)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, []int{25}, sweeper.limits)
	assert.Equal(t, 1, relay.calls)
	require.Len(t, reaper.cutoffs, 1)
	assert.Equal(t, start.Add(-24*time.Hour), reaper.cutoffs[0])

	clk.Advance(10 * time.Second)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 2, relay.calls)
	assert.Len(t, reaper.cutoffs, 1)

	clk.Advance(5 * time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 2, sweeper.calls)
	assert.Equal(t, 3, relay.calls)
	assert.Len(t, reaper.cutoffs, 1)

	clk.Advance(time.Hour)
	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, reaper.cutoffs, 2)
	assert.Equal(t, start.Add(10*time.Second+5*time.Minute+time.Hour-24*time.Hour), reaper.cutoffs[1])
}

func TestEnabledJobsFilter(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	sweeper := &fakeSweeper{}
	reaper := &fakeReaper{}
	relay := &fakeRelay{}

	s := newTestScheduler(t, clk, Config{EnabledJobs: []string{"OVERDUE_SWEEP"}}, sweeper, reaper, relay)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, sweeper.calls)
	assert.Zero(t, relay.calls)
	assert.Empty(t, reaper.cutoffs)
}

func TestOverdueSweepLabelsSkipsByReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "invoicecore", Environment: "test"})

	sweeper := &fakeSweeper{result: invoicedomain.SweepResult{
		Scanned: 4,
		Marked:  1,
		Skipped: 3,
		SkipErrs: []error{
			invoicedomain.ErrConcurrentModification,
			&invoicedomain.IllegalTransitionError{From: invoicedomain.StatusPaid, To: invoicedomain.StatusOverdue},
			&invoicedomain.IllegalTransitionError{From: invoicedomain.StatusVoid, To: invoicedomain.StatusOverdue},
		},
	}}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s := newTestScheduler(t, clk, Config{EnabledJobs: []string{JobOverdueSweep}, SweepBatch: 10, JobTimeout: time.Minute}, sweeper, &fakeReaper{}, &fakeRelay{})
	require.NoError(t, s.RunOnce(context.Background()))

	labels := func(reason string) map[string]string {
		return map[string]string{"service": "invoicecore", "env": "test", "job": JobOverdueSweep, "reason": reason}
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "invoicecore_scheduler_batch_skipped_total", labels(obsmetrics.SchedulerJobReasonConcurrentModification)))
	assert.Equal(t, float64(2), getCounterValue(t, registry, "invoicecore_scheduler_batch_skipped_total", labels(obsmetrics.SchedulerJobReasonIllegalTransition)))
}

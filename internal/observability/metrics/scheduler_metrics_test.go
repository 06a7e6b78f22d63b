package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "concurrent_modification",
			err:  fmt.Errorf("mark overdue: %w", invoicedomain.ErrConcurrentModification),
			want: SchedulerJobReasonConcurrentModification,
		},
		{
			name: "illegal_transition",
			err:  &invoicedomain.IllegalTransitionError{From: invoicedomain.StatusPaid, To: invoicedomain.StatusOverdue},
			want: SchedulerJobReasonIllegalTransition,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSchedulerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "invoicecore", Environment: "test"})

	m.IncJobRun("overdue_sweep")
	m.IncJobRun("overdue_sweep")
	m.AddBatchProcessed("overdue_sweep", "invoices", 3)
	m.IncBatchSkipped("overdue_sweep", invoicedomain.ErrConcurrentModification)
	m.IncJobError("overdue_sweep", context.DeadlineExceeded)
	m.ObserveJobDuration("overdue_sweep", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("overdue_sweep")); got != 2 {
		t.Fatalf("expected 2 job runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("overdue_sweep", "invoices")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchSkipped.WithLabelValues("overdue_sweep", SchedulerJobReasonConcurrentModification)); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("overdue_sweep", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(invoicedomain.ErrConcurrentModification) {
		t.Fatalf("expected version conflicts to be retryable")
	}
	if IsSchedulerErrorRetryable(errors.New("boom")) {
		t.Fatalf("expected plain errors to be terminal")
	}
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "08006"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db error type, got %q", got)
	}
}

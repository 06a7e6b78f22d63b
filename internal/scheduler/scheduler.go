package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOverdueSweep    = "overdue_sweep"
	JobOutboxRelay     = "outbox_relay"
	JobAbandonSessions = "abandon_sessions"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type overdueSweeper interface {
	SweepOverdue(ctx context.Context, limit int) (invoicedomain.SweepResult, error)
}

type sessionReaper interface {
	AbandonStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type eventRelay interface {
	ProcessPending(ctx context.Context, now time.Time) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	PaymentSvc paymentdomain.Service
	Relay      *events.Relay
	Config     Config `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: marking past-due invoices
// overdue, relaying outbox events and abandoning stale payment sessions.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	sweeper overdueSweeper
	reaper  sessionReaper
	relay   eventRelay

	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil || p.PaymentSvc == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	return newScheduler(p.Log, p.GenID, p.Clock, p.Config, p.InvoiceSvc, p.PaymentSvc, p.Relay), nil
}

func newScheduler(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, cfg Config, sweeper overdueSweeper, reaper sessionReaper, relay eventRelay) *Scheduler {
	return &Scheduler{
		log:     log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg.withDefaults(),
		genID:   genID,
		clock:   clk,
		sweeper: sweeper,
		reaper:  reaper,
		relay:   relay,
		lastRun: make(map[string]time.Time),
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	schedMetrics.AddBatchProcessed(name, resourceFor(name), run.processedCount)
	if err != nil {
		s.logJobError(ctx, run, err)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// A timed out batch resumes on the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

type job struct {
	name     string
	interval time.Duration
	batch    int
	run      func(ctx context.Context, run *jobRun) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobOutboxRelay, s.cfg.RelayInterval, 0, s.outboxRelayJob},
		{JobOverdueSweep, s.cfg.SweepInterval, s.cfg.SweepBatch, s.overdueSweepJob},
		{JobAbandonSessions, s.cfg.SessionInterval, s.cfg.SessionBatch, s.abandonSessionsJob},
	}
}

// RunOnce runs every enabled job whose interval has elapsed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.isDue(j.name, j.interval, now) {
			continue
		}
		s.lastRun[j.name] = now
		err = errors.Join(err, s.runJob(parent, j.name, j.batch, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) isDue(name string, interval time.Duration, now time.Time) bool {
	last, ok := s.lastRun[name]
	return !ok || now.Sub(last) >= interval
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = s.clock.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) overdueSweepJob(ctx context.Context, run *jobRun) error {
	result, err := s.sweeper.SweepOverdue(ctx, s.cfg.SweepBatch)
	run.AddProcessed(result.Marked)
	run.AddSkipped(result.Skipped)
	for _, skipErr := range result.SkipErrs {
		obsmetrics.Scheduler().IncBatchSkipped(JobOverdueSweep, skipErr)
	}
	return err
}

func (s *Scheduler) outboxRelayJob(ctx context.Context, run *jobRun) error {
	published, err := s.relay.ProcessPending(ctx, s.clock.Now().UTC())
	run.AddProcessed(published)
	return err
}

func (s *Scheduler) abandonSessionsJob(ctx context.Context, run *jobRun) error {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.SessionTTL)
	abandoned, err := s.reaper.AbandonStale(ctx, cutoff, s.cfg.SessionBatch)
	run.AddProcessed(abandoned)
	return err
}

func resourceFor(job string) string {
	switch job {
	case JobOverdueSweep:
		return "invoice"
	case JobOutboxRelay:
		return "event"
	case JobAbandonSessions:
		return "payment_session"
	}
	return "unknown"
}

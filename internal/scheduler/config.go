package scheduler

import (
	"time"

	"github.com/smallbiznis/invoicecore/internal/config"
)

// Config controls job intervals and batch sizes.
type Config struct {
	// RunInterval is the loop tick; each job still honours its own interval.
	RunInterval     time.Duration
	SweepInterval   time.Duration
	SweepBatch      int
	RelayInterval   time.Duration
	SessionInterval time.Duration
	SessionTTL      time.Duration
	SessionBatch    int
	JobTimeout      time.Duration
	EnabledJobs     []string
	// Disabled is set when configuration leaves no job to run.
	Disabled bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     5 * time.Second,
		SweepInterval:   5 * time.Minute,
		SweepBatch:      100,
		RelayInterval:   10 * time.Second,
		SessionInterval: 15 * time.Minute,
		SessionTTL:      24 * time.Hour,
		SessionBatch:    100,
		JobTimeout:      30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	jobs := cfg.SchedulerJobs
	if !cfg.SweepEnabled {
		if len(jobs) == 0 {
			jobs = []string{JobOutboxRelay, JobAbandonSessions}
		}
		jobs = without(jobs, JobOverdueSweep)
	}
	return Config{
		SweepInterval: cfg.SweepInterval,
		SweepBatch:    cfg.SweepBatch,
		RelayInterval: cfg.OutboxRelayInterval,
		SessionTTL:    cfg.PaymentSessionTTL,
		EnabledJobs:   jobs,
		Disabled:      !cfg.SchedulerEnabled || (jobs != nil && len(jobs) == 0),
	}.withDefaults()
}

func without(jobs []string, name string) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job != name {
			out = append(out, job)
		}
	}
	return out
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = defaults.SweepBatch
	}
	if c.RelayInterval <= 0 {
		c.RelayInterval = defaults.RelayInterval
	}
	if c.SessionInterval <= 0 {
		c.SessionInterval = defaults.SessionInterval
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaults.SessionTTL
	}
	if c.SessionBatch <= 0 {
		c.SessionBatch = defaults.SessionBatch
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RunInterval > c.RelayInterval {
		c.RunInterval = c.RelayInterval
	}
	return c
}

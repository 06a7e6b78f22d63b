package scheduler

import (
	"testing"
	"time"

	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestProvideConfigAppliesDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{SchedulerEnabled: true, SweepEnabled: true, OutboxRelayInterval: 2 * time.Second})

	assert.False(t, cfg.Disabled)
	assert.Nil(t, cfg.EnabledJobs)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatch)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.RunInterval, "loop tick never exceeds the relay interval")
}

func TestProvideConfigSweepToggle(t *testing.T) {
	cfg := ProvideConfig(config.Config{SchedulerEnabled: true})
	assert.Equal(t, []string{JobOutboxRelay, JobAbandonSessions}, cfg.EnabledJobs)
	assert.False(t, cfg.Disabled)

	cfg = ProvideConfig(config.Config{SchedulerEnabled: true, SchedulerJobs: []string{JobOverdueSweep}})
	assert.Empty(t, cfg.EnabledJobs)
	assert.True(t, cfg.Disabled)

	cfg = ProvideConfig(config.Config{SweepEnabled: true})
	assert.True(t, cfg.Disabled)
}

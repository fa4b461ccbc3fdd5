package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Broker.Kind)

	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 25, cfg.Scheduler.RetryBatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RedeliveryTimeout)

	assert.Equal(t, 300, cfg.Classifier.BaseRetryDelaySeconds)
	assert.Equal(t, 3600, cfg.Classifier.MaxRetryDelaySeconds)
	assert.NotEmpty(t, cfg.Classifier.PermanentErrorKeywords)
	assert.NotEmpty(t, cfg.Classifier.TransientErrorKeywords)

	assert.Equal(t, 30, cfg.DeadLetter.RetentionDays)
	assert.Equal(t, 50, cfg.DeadLetter.BatchSize)
	assert.Equal(t, 3, cfg.DeadLetter.ManualReviewAttempts)
	assert.Contains(t, cfg.DeadLetter.FinancialQueueTypes, "payment_webhook")
	assert.Contains(t, cfg.DeadLetter.UnsafeTaskKeywords, "refund")

	assert.Contains(t, cfg.Broker.Routes, "webhook=webhooks")
	assert.Equal(t, 30*time.Second, cfg.Health.CollectInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://tasks:tasks@db:5432/tasks")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BROKER_KIND", "http")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://tasks:tasks@db:5432/tasks", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http", cfg.Broker.Kind)
}

func TestGetDatabaseURLFallsBackToEnv(t *testing.T) {
	globalConfig = nil
	t.Setenv("DATABASE_URL", "postgres://fallback:5432/tasks")
	assert.Equal(t, "postgres://fallback:5432/tasks", GetDatabaseURL())
}

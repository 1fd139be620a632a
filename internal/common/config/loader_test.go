package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "notification-service", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Sweeper.Interval)
	assert.Equal(t, 50, cfg.Sweeper.PageSize)
	assert.Equal(t, 5, cfg.Dispatch.SweepConcurrency)
	assert.Equal(t, 5, cfg.Dispatch.BulkConcurrency)
	assert.Equal(t, "hlx.events", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 14, cfg.Email.RatePerSec)
	assert.Equal(t, 10, cfg.Email.BatchSize)
	assert.Equal(t, 1000, cfg.Email.BatchDelayMs)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Sweeper.Interval = 5
	cfg.Dispatch.BulkConcurrency = 20
	applyDefaults(cfg)

	assert.Equal(t, 5, cfg.Sweeper.Interval)
	assert.Equal(t, 20, cfg.Dispatch.BulkConcurrency)
}

func TestValidateConfig(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Database.Postgres.Database = "notifications"

	require.NoError(t, validateConfig(cfg))
}

func TestValidateConfigRequiresDatabase(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigAllowsMissingEmailCredentials(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Database.Postgres.Database = "notifications"

	require.NoError(t, validateConfig(cfg))
	assert.False(t, cfg.Email.Configured())
}

func TestEmailConfigured(t *testing.T) {
	cfg := EmailConfig{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}
	assert.True(t, cfg.Configured())

	cfg.RefreshToken = ""
	assert.False(t, cfg.Configured())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 10, cfg.Poller.MaxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Poller.VisibilityTimeout)
	assert.Equal(t, 20*time.Second, cfg.Poller.WaitTime)
	assert.True(t, cfg.Poller.Enabled)
	assert.True(t, cfg.Reconciler.CaptureHeaders)
	assert.Equal(t, "record", cfg.Reconciler.ClickDedupScope)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
poller:
  interval: 5s
  max_batch_size: 3
reconciler:
  click_dedup_scope: link
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 3, cfg.Poller.MaxBatchSize)
	assert.Equal(t, "link", cfg.Reconciler.ClickDedupScope)
	// Untouched sections keep their defaults.
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MAILTRACK_QUEUE_MAIN_URL", "https://sqs.us-east-1.amazonaws.com/123/ses-events")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/ses-events", cfg.Queue.MainURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "batch size too large",
			mutate:  func(c *Config) { c.Poller.MaxBatchSize = 11 },
			wantErr: "max_batch_size",
		},
		{
			name:    "batch size zero",
			mutate:  func(c *Config) { c.Poller.MaxBatchSize = 0 },
			wantErr: "max_batch_size",
		},
		{
			name:    "non-positive interval",
			mutate:  func(c *Config) { c.Poller.Interval = 0 },
			wantErr: "interval",
		},
		{
			name:    "bad dedup scope",
			mutate:  func(c *Config) { c.Reconciler.ClickDedupScope = "campaign" },
			wantErr: "click_dedup_scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

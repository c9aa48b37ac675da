package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/sensorguard/pkg/dataset"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "model.log", cfg.LogFile)
	assert.Equal(t, dataset.DefaultSchema(), cfg.Schema)
	assert.Equal(t, time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC), cfg.Windows.Train.Start)
	assert.True(t, cfg.Windows.Train.End.Equal(cfg.Windows.Test.Start))
	assert.Len(t, cfg.ForestOptions(), 4)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
input_dir: /data/in
output_dir: /data/out
train_file: /data/sensor.csv
poll_interval: 30s
threads: 4
render_workers: 8
log_level: debug
schema:
  status_column: state
windows:
  train:
    start: 2019-01-01T00:00:00Z
    end: 2019-02-01T00:00:00Z
forest:
  trees: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/in", cfg.InputDir)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 8, cfg.RenderWorkers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "state", cfg.Schema.StatusColumn)
	assert.Equal(t, dataset.DefaultTimestampColumn, cfg.Schema.TimestampColumn, "unset keys keep defaults")
	assert.Equal(t, time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC), cfg.Windows.Train.End)
	assert.Equal(t, 200, cfg.Forest.Trees)
	assert.Equal(t, 256, cfg.Forest.SampleSize)

	mc := cfg.Monitor()
	assert.Equal(t, "/data/in", mc.InputDir)
	assert.Equal(t, "/data/out", mc.OutputDir)
	assert.Equal(t, 30*time.Second, mc.PollInterval)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "input_directory: /data\n"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "poll_interval: often\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"no threads", func(c *Config) { c.Threads = 0 }, "threads"},
		{"negative render workers", func(c *Config) { c.RenderWorkers = -1 }, "render_workers"},
		{"no status column", func(c *Config) { c.Schema.StatusColumn = "" }, "status_column"},
		{"no normal label", func(c *Config) { c.Schema.NormalLabel = "" }, "normal_label"},
		{"empty training window", func(c *Config) { c.Windows.Train.End = c.Windows.Train.Start }, "training window"},
		{"overlapping windows", func(c *Config) { c.Windows.Test.Start = c.Windows.Train.Start }, "overlaps"},
		{"tiny forest", func(c *Config) { c.Forest.SampleSize = 1 }, "forest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

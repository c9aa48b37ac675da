// Package monitor watches a directory for new sensor files and runs each
// one through cleaning, scoring, rendering and persistence exactly once per
// run.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hed1ad/sensorguard/internal/metrics"
	"github.com/hed1ad/sensorguard/pkg/dataset"
	sgio "github.com/hed1ad/sensorguard/pkg/io"
	"github.com/hed1ad/sensorguard/pkg/io/csv"
	"github.com/hed1ad/sensorguard/pkg/visualize"
)

// Defaults for Config fields left empty.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultExtension    = ".csv"
	DefaultOutputSuffix = "-predicted"
	DefaultImageDir     = "img"
)

// Scorer appends anomaly columns to a table. *model.Model implements it.
type Scorer interface {
	Score(t *dataset.Table) error
}

// Renderer draws a scored table into a directory and returns the channels
// that completed. *visualize.Renderer implements it.
type Renderer interface {
	Render(t *dataset.Table, dir string) ([]string, error)
}

// Config locates the monitored and output directories.
type Config struct {
	InputDir     string
	OutputDir    string
	PollInterval time.Duration
	// Extension selects input files, ".csv" by default.
	Extension string
	// OutputSuffix is inserted before the extension of written tables.
	OutputSuffix string
	// ImageDir is the subdirectory of OutputDir receiving charts.
	ImageDir string
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.OutputSuffix == "" {
		c.OutputSuffix = DefaultOutputSuffix
	}
	if c.ImageDir == "" {
		c.ImageDir = DefaultImageDir
	}
}

// StageError reports the pipeline stage at which a file failed.
type StageError struct {
	File  string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Monitor polls an input directory and processes each new file once.
type Monitor struct {
	cfg      Config
	scorer   Scorer
	reader   sgio.Reader
	writer   sgio.Writer
	renderer Renderer
	registry *Registry
	// failing holds the last error of each file that has not yet succeeded.
	failing map[string]string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithReader sets the table reader.
func WithReader(r sgio.Reader) Option {
	return func(m *Monitor) {
		m.reader = r
	}
}

// WithWriter sets the table writer.
func WithWriter(w sgio.Writer) Option {
	return func(m *Monitor) {
		m.writer = w
	}
}

// WithRenderer sets the chart renderer.
func WithRenderer(r Renderer) Option {
	return func(m *Monitor) {
		m.renderer = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithMetrics sets the collectors updated per file.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// New creates a Monitor and its output directories. scorer must already be
// trained; it is only read.
func New(cfg Config, scorer Scorer, opts ...Option) (*Monitor, error) {
	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return nil, errors.New("monitor: input and output directories are required")
	}
	cfg.setDefaults()

	m := &Monitor{
		cfg:      cfg,
		scorer:   scorer,
		registry: NewRegistry(),
		failing:  make(map[string]string),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reader == nil || m.writer == nil {
		codec := csv.New()
		if m.reader == nil {
			m.reader = codec
		}
		if m.writer == nil {
			m.writer = codec
		}
	}
	if m.metrics == nil {
		m.metrics = metrics.New(prometheus.NewRegistry())
	}
	if m.renderer == nil {
		m.renderer = visualize.New(visualize.NewGonumPlotter(),
			visualize.WithLogger(m.logger),
			visualize.WithMetrics(m.metrics),
		)
	}

	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, cfg.ImageDir), 0o755); err != nil {
		return nil, fmt.Errorf("monitor: %w: %w", dataset.ErrIO, err)
	}
	return m, nil
}

// Registry returns the processed-file registry.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// Run scans the input directory, waits the poll interval and repeats until
// ctx is cancelled. Scans never overlap.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitoring started", "input_dir", m.cfg.InputDir, "output_dir", m.cfg.OutputDir, "poll_interval", m.cfg.PollInterval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitoring stopped", "processed", m.registry.Len())
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := m.Scan(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("scan failed", "input_dir", m.cfg.InputDir, "error", err)
		}
		timer.Reset(m.cfg.PollInterval)
	}
}

// Scan makes one pass over the input directory and processes every new
// file. A file is registered only when its whole pipeline succeeds; a failed
// file is retried by the next scan. A failure is logged at error level once
// and at debug level while it repeats unchanged. Scan returns the number of
// files processed.
func (m *Monitor) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.cfg.InputDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}

	processed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, m.cfg.Extension) || m.registry.Has(name) {
			continue
		}
		if m.sharedDir() && strings.HasSuffix(name, m.cfg.OutputSuffix+m.cfg.Extension) {
			continue
		}

		if err := m.processFile(name); err != nil {
			var se *StageError
			stage := "unknown"
			if errors.As(err, &se) {
				stage = se.Stage
			}
			m.metrics.FileFailures.WithLabelValues(stage).Inc()
			if msg := err.Error(); m.failing[name] != msg {
				m.failing[name] = msg
				m.logger.Error("file failed", "file", name, "stage", stage, "error", err)
			} else {
				m.logger.Debug("file still failing", "file", name, "stage", stage)
			}
			continue
		}

		delete(m.failing, name)
		m.registry.Add(name)
		m.metrics.RegisteredFiles.Set(float64(m.registry.Len()))
		processed++
	}
	return processed, nil
}

// sharedDir reports whether results are written next to the inputs, in
// which case they must not be picked up as new inputs.
func (m *Monitor) sharedDir() bool {
	return filepath.Clean(m.cfg.InputDir) == filepath.Clean(m.cfg.OutputDir)
}

// OutputName derives the written table's name from an input filename.
func (m *Monitor) OutputName(name string) string {
	stem := strings.TrimSuffix(name, m.cfg.Extension)
	return stem + m.cfg.OutputSuffix + m.cfg.Extension
}

// ImageDir returns the directory receiving the charts of an input file.
func (m *Monitor) ImageDir(name string) string {
	return filepath.Join(m.cfg.OutputDir, m.cfg.ImageDir, strings.TrimSuffix(name, m.cfg.Extension))
}

func (m *Monitor) processFile(name string) error {
	start := time.Now()
	path := filepath.Join(m.cfg.InputDir, name)
	m.logger.Info("processing file", "file", path)

	t, err := m.reader.Read(path)
	if err != nil {
		return &StageError{File: name, Stage: metrics.StageRead, Err: err}
	}
	dropped, err := dataset.Clean(t)
	if err != nil {
		return &StageError{File: name, Stage: metrics.StageClean, Err: err}
	}
	if len(dropped) > 0 {
		m.logger.Warn("dropped sparse columns", "file", name, "columns", dropped)
	}
	if err := m.scorer.Score(t); err != nil {
		return &StageError{File: name, Stage: metrics.StageScore, Err: err}
	}
	if _, err := m.renderer.Render(t, m.ImageDir(name)); err != nil {
		return &StageError{File: name, Stage: metrics.StageRender, Err: err}
	}
	out := filepath.Join(m.cfg.OutputDir, m.OutputName(name))
	if err := m.writer.Write(t, out); err != nil {
		return &StageError{File: name, Stage: metrics.StageWrite, Err: err}
	}

	anomalies := len(t.FlaggedRows())
	elapsed := time.Since(start)
	m.metrics.FilesProcessed.Inc()
	m.metrics.AnomaliesDetected.Add(float64(anomalies))
	m.metrics.ProcessingDuration.Observe(elapsed.Seconds())
	m.logger.Info("file processed", "file", name, "rows", t.Len(), "anomalies", anomalies, "output", out, "elapsed", elapsed)
	return nil
}

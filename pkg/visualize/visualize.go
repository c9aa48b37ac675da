// Package visualize renders one chart per sensor channel of a scored table.
package visualize

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/sensorguard/internal/metrics"
	"github.com/hed1ad/sensorguard/pkg/dataset"
)

var (
	// ErrMissingChannel is reported for a requested channel the table lacks.
	ErrMissingChannel = errors.New("channel not in table")
	// ErrChannelName is reported for a channel that cannot name a file in
	// the output directory.
	ErrChannelName = errors.New("channel name is not a plain file name")
)

// Chart is everything needed to draw one channel.
type Chart struct {
	Channel string
	Times   []time.Time
	Values  []float64
	// Row indexes to mark.
	Broken     []int
	Recovering []int
	Anomalous  []int
}

// Plotter draws a chart and saves it to path.
type Plotter interface {
	Plot(c Chart, path string) error
}

// PlotterFunc adapts a function to Plotter.
type PlotterFunc func(c Chart, path string) error

// Plot calls f.
func (f PlotterFunc) Plot(c Chart, path string) error { return f(c, path) }

// Renderer fans chart drawing out to one goroutine per channel.
type Renderer struct {
	plotter  Plotter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	workers  int
	channels []string
	ext      string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger for per-channel failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

// WithMetrics counts render failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// WithWorkers bounds concurrent renders. Zero or less means one goroutine
// per channel.
func WithWorkers(n int) Option {
	return func(r *Renderer) {
		r.workers = n
	}
}

// WithChannels renders exactly these channels instead of those found in
// the table.
func WithChannels(names ...string) Option {
	return func(r *Renderer) {
		r.channels = names
	}
}

// New creates a Renderer drawing with p.
func New(p Plotter, opts ...Option) *Renderer {
	r := &Renderer{
		plotter: p,
		logger:  slog.Default(),
		ext:     ".png",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws every channel of t into dir as <channel>.png and returns the
// channels that completed, once all workers have finished. A failing
// channel is logged and left out; it never stops the others. The only
// error returned is failure to create dir.
func (r *Renderer) Render(t *dataset.Table, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}

	channels := r.channels
	if channels == nil {
		channels = t.Channels()
	}

	// Markers are shared read-only by all workers.
	broken := t.RowsWithStatus(t.Schema.BrokenLabel)
	recovering := t.RowsWithStatus(t.Schema.RecoveringLabel)
	anomalous := t.FlaggedRows()

	completed := make(chan string, len(channels))
	var g errgroup.Group
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for _, ch := range channels {
		g.Go(func() error {
			err := r.renderOne(t, ch, filepath.Join(dir, ch+r.ext), broken, recovering, anomalous)
			if err != nil {
				r.logger.Error("render failed", "channel", ch, "error", err)
				if r.metrics != nil {
					r.metrics.RenderFailures.Inc()
				}
				return nil
			}
			completed <- ch
			return nil
		})
	}
	_ = g.Wait()
	close(completed)

	done := make([]string, 0, len(channels))
	for ch := range completed {
		done = append(done, ch)
	}
	r.logger.Info("rendered channels", "completed", done, "requested", len(channels))
	return done, nil
}

func (r *Renderer) renderOne(t *dataset.Table, ch, path string, broken, recovering, anomalous []int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if !filepath.IsLocal(ch) || filepath.Base(ch) != ch {
		return fmt.Errorf("%w: %q", ErrChannelName, ch)
	}
	values, ok := t.Column(ch)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingChannel, ch)
	}
	return r.plotter.Plot(Chart{
		Channel:    ch,
		Times:      t.Timestamps,
		Values:     values,
		Broken:     broken,
		Recovering: recovering,
		Anomalous:  anomalous,
	}, path)
}

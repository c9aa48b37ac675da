package visualize

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/sensorguard/internal/metrics"
	"github.com/hed1ad/sensorguard/pkg/dataset"
)

func scoredTable() *dataset.Table {
	t := dataset.New(dataset.DefaultSchema())
	start := time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC)
	t.Features = []string{"sensor_1", "sensor_2", "temperature"}
	t.Status = []string{
		dataset.StatusNormal, dataset.StatusBroken, dataset.StatusRecovering,
		dataset.StatusNormal, dataset.StatusNormal,
	}
	for i := range t.Status {
		t.Timestamps = append(t.Timestamps, start.Add(time.Duration(i)*time.Minute))
	}
	t.Values["sensor_1"] = []float64{1, 9, 4, 1, 1}
	t.Values["sensor_2"] = []float64{5, 0, 3, 5, 6}
	t.Values["temperature"] = []float64{20, 20, 21, 21, 20}
	t.SetDerived(dataset.ScoreColumn, []float64{0.4, 0.8, 0.6, 0.4, 0.7})
	t.SetDerived(dataset.FlagColumn, []float64{0, 1, 0, 0, 1})
	return t
}

// fileWriter writes a placeholder image, failing for the channels in fail.
func fileWriter(fail ...string) PlotterFunc {
	return func(c Chart, path string) error {
		for _, f := range fail {
			if c.Channel == f {
				return errors.New("plot backend unavailable")
			}
		}
		return os.WriteFile(path, []byte("png"), 0o644)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()

	done, err := New(fileWriter()).Render(scoredTable(), dir)
	require.NoError(t, err)

	sort.Strings(done)
	assert.Equal(t, []string{"sensor_1", "sensor_2"}, done)
	assert.FileExists(t, filepath.Join(dir, "sensor_1.png"))
	assert.FileExists(t, filepath.Join(dir, "sensor_2.png"))
	assert.NoFileExists(t, filepath.Join(dir, "temperature.png"))
}

func TestRenderFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())

	r := New(fileWriter("sensor_2"),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithMetrics(m),
	)
	done, err := r.Render(scoredTable(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"sensor_1"}, done)
	assert.FileExists(t, filepath.Join(dir, "sensor_1.png"))
	assert.NoFileExists(t, filepath.Join(dir, "sensor_2.png"))
	assert.Contains(t, logs.String(), "render failed")
	assert.Contains(t, logs.String(), "channel=sensor_2")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderFailures))
}

func TestRenderRecoversPanic(t *testing.T) {
	p := PlotterFunc(func(c Chart, path string) error {
		if c.Channel == "sensor_1" {
			panic("index out of range")
		}
		return os.WriteFile(path, nil, 0o644)
	})

	done, err := New(p, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))).Render(scoredTable(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor_2"}, done)
}

func TestRenderMissingChannel(t *testing.T) {
	var logs bytes.Buffer
	r := New(fileWriter(),
		WithChannels("sensor_1", "sensor_99"),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	done, err := r.Render(scoredTable(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor_1"}, done)
	assert.Contains(t, logs.String(), ErrMissingChannel.Error())
}

func TestRenderRejectsPathChannels(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out", "img", "a")
	tbl := scoredTable()
	escape := "sensor_x/../../../../escaped"
	tbl.Features = append(tbl.Features, escape)
	tbl.Values[escape] = []float64{1, 2, 3, 4, 5}

	var logs bytes.Buffer
	done, err := New(fileWriter(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))).Render(tbl, dir)
	require.NoError(t, err)

	sort.Strings(done)
	assert.Equal(t, []string{"sensor_1", "sensor_2"}, done)
	assert.NoFileExists(t, filepath.Join(root, "escaped.png"))
	assert.Contains(t, logs.String(), ErrChannelName.Error())
}

func TestRenderMarkers(t *testing.T) {
	var mu sync.Mutex
	charts := make(map[string]Chart)
	p := PlotterFunc(func(c Chart, path string) error {
		mu.Lock()
		defer mu.Unlock()
		charts[c.Channel] = c
		return nil
	})

	_, err := New(p, WithWorkers(1)).Render(scoredTable(), t.TempDir())
	require.NoError(t, err)

	require.Len(t, charts, 2)
	c := charts["sensor_1"]
	assert.Equal(t, []float64{1, 9, 4, 1, 1}, c.Values)
	assert.Len(t, c.Times, 5)
	assert.Equal(t, []int{1}, c.Broken)
	assert.Equal(t, []int{2}, c.Recovering)
	assert.Equal(t, []int{1, 4}, c.Anomalous)
}

func TestRenderUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := New(fileWriter()).Render(scoredTable(), filepath.Join(blocker, "img"))
	assert.ErrorIs(t, err, dataset.ErrIO)
}

func TestGonumPlotter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_1.png")
	tbl := scoredTable()

	p := &GonumPlotter{Width: NewGonumPlotter().Width / 5, Height: NewGonumPlotter().Height}
	err := p.Plot(Chart{
		Channel:    "sensor_1",
		Times:      tbl.Timestamps,
		Values:     tbl.Values["sensor_1"],
		Broken:     []int{1},
		Recovering: []int{2},
		Anomalous:  []int{1, 4},
	}, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, p.Plot(Chart{Channel: "empty"}, filepath.Join(t.TempDir(), "empty.png")))
}

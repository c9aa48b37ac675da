// Package config loads sensorguard settings from defaults and an optional
// YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/sensorguard/pkg/dataset"
	"github.com/hed1ad/sensorguard/pkg/detectors/iforest"
	"github.com/hed1ad/sensorguard/pkg/model"
	"github.com/hed1ad/sensorguard/pkg/monitor"
)

// Config is the full runtime configuration.
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	TrainFile string `yaml:"train_file"`
	// ModelFile, when set, is loaded instead of training from TrainFile.
	ModelFile string `yaml:"model_file"`

	PollInterval time.Duration `yaml:"poll_interval"`
	// Threads is the parallelism width used to fit the detector.
	Threads int `yaml:"threads"`
	// RenderWorkers bounds concurrent chart renders; 0 is one per channel.
	RenderWorkers int `yaml:"render_workers"`

	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsAddr string `yaml:"metrics_addr"`

	Schema  dataset.Schema `yaml:"schema"`
	Windows Windows        `yaml:"windows"`
	Forest  Forest         `yaml:"forest"`
}

// Windows are the training and held-out ranges cut from the training file.
type Windows struct {
	Train model.Window `yaml:"train"`
	Test  model.Window `yaml:"test"`
}

// Forest tunes the Isolation Forest.
type Forest struct {
	Trees      int   `yaml:"trees"`
	SampleSize int   `yaml:"sample_size"`
	Seed       int64 `yaml:"seed"`
}

// Default returns the configuration used when nothing is set. The windows
// match the pump-sensor history: April to June 2018 for training, July and
// August 2018 held out.
func Default() Config {
	return Config{
		PollInterval: monitor.DefaultPollInterval,
		Threads:      1,
		LogFile:      "model.log",
		LogLevel:     "info",
		LogFormat:    "text",
		Schema:       dataset.DefaultSchema(),
		Windows: Windows{
			Train: model.Window{Start: date(2018, 4, 1), End: date(2018, 7, 1)},
			Test:  model.Window{Start: date(2018, 7, 1), End: date(2018, 9, 1)},
		},
		Forest: Forest{
			Trees:      100,
			SampleSize: 256,
			Seed:       42,
		},
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings shared by every command.
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}
	if c.RenderWorkers < 0 {
		errs = append(errs, fmt.Errorf("render_workers must not be negative, got %d", c.RenderWorkers))
	}
	if c.Schema.TimestampColumn == "" || c.Schema.StatusColumn == "" {
		errs = append(errs, errors.New("schema timestamp_column and status_column are required"))
	}
	if c.Schema.NormalLabel == "" {
		errs = append(errs, errors.New("schema normal_label is required"))
	}
	if !c.Windows.Train.Start.Before(c.Windows.Train.End) {
		errs = append(errs, fmt.Errorf("training window %s is empty", c.Windows.Train))
	}
	if !c.Windows.Test.Start.Before(c.Windows.Test.End) {
		errs = append(errs, fmt.Errorf("held-out window %s is empty", c.Windows.Test))
	}
	if c.Windows.Train.Overlaps(c.Windows.Test) {
		errs = append(errs, fmt.Errorf("training window %s overlaps held-out window %s", c.Windows.Train, c.Windows.Test))
	}
	if c.Forest.Trees < 1 || c.Forest.SampleSize < 2 {
		errs = append(errs, fmt.Errorf("forest needs at least 1 tree and a sample size of 2, got %d and %d", c.Forest.Trees, c.Forest.SampleSize))
	}
	return errors.Join(errs...)
}

// ForestOptions converts the forest settings to detector options.
func (c Config) ForestOptions() []iforest.Option {
	return []iforest.Option{
		iforest.WithTrees(c.Forest.Trees),
		iforest.WithSampleSize(c.Forest.SampleSize),
		iforest.WithSeed(c.Forest.Seed),
		iforest.WithJobs(c.Threads),
	}
}

// Monitor returns the monitor settings.
func (c Config) Monitor() monitor.Config {
	return monitor.Config{
		InputDir:     c.InputDir,
		OutputDir:    c.OutputDir,
		PollInterval: c.PollInterval,
	}
}

package main

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hed1ad/sensorguard/internal/config"
	"github.com/hed1ad/sensorguard/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "sensorguard",
	Short: "Sensor anomaly monitoring with a novelty detector",
	Long: `sensorguard fits an Isolation Forest on a historical window of sensor
telemetry, then scores new telemetry files, charts every sensor channel and
writes the scored tables.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	pf.String("log-file", "", "append logs to this file (default model.log)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.Version = version
}

// setup loads the config, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	base, closer, err := logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	logSink = closer
	logger = base.With(slog.String("run_id", uuid.NewString()))
	return nil
}

// closeLog releases the log file opened by setup. cobra skips post-run
// hooks when a command fails, so it is called after Execute returns.
func closeLog() error {
	if logSink == nil {
		return nil
	}
	err := logSink.Close()
	logSink = nil
	return err
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}

	str("log-file", &c.LogFile)
	str("log-level", &c.LogLevel)
	str("log-format", &c.LogFormat)
	str("input", &c.InputDir)
	str("output", &c.OutputDir)
	str("trainfile", &c.TrainFile)
	str("model", &c.ModelFile)
	str("metrics-addr", &c.MetricsAddr)
	num("num-threads", &c.Threads)
	num("render-workers", &c.RenderWorkers)
	if fs.Changed("poll-interval") {
		c.PollInterval, _ = fs.GetDuration("poll-interval")
	}
}

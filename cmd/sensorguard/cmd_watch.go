package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/sensorguard/internal/logging"
	"github.com/hed1ad/sensorguard/internal/metrics"
	"github.com/hed1ad/sensorguard/pkg/io/csv"
	"github.com/hed1ad/sensorguard/pkg/monitor"
	"github.com/hed1ad/sensorguard/pkg/visualize"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Train, then score every new file dropped in the input directory",
	Long: `Trains the detector (or loads --model), then polls the input directory.
Each new .csv file is cleaned, scored, charted under <output>/img/<name>/ and
written to <output>/<name>-predicted.csv. A file is processed once per run;
a file that fails is retried on the next scan. Stop with SIGINT or SIGTERM.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringP("input", "i", "", "directory to watch for new files")
	f.StringP("output", "o", "", "directory for scored files and charts")
	f.StringP("trainfile", "t", "", "historical telemetry to train on")
	f.StringP("model", "m", "", "trained model file; skips training")
	f.IntP("num-threads", "n", 1, "parallelism width for model fitting")
	f.Duration("poll-interval", 5*time.Second, "delay between directory scans")
	f.Int("render-workers", 0, "concurrent chart renders (0 = one per channel)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return errors.New("--input and --output are required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := prepareModel(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	codec := csv.New(csv.WithSchema(cfg.Schema))
	renderer := visualize.New(visualize.NewGonumPlotter(),
		visualize.WithLogger(logging.New(logger, "visualize")),
		visualize.WithMetrics(mt),
		visualize.WithWorkers(cfg.RenderWorkers),
	)
	mon, err := monitor.New(cfg.Monitor(), tr.model,
		monitor.WithReader(codec),
		monitor.WithWriter(codec),
		monitor.WithRenderer(renderer),
		monitor.WithLogger(logging.New(logger, "monitor")),
		monitor.WithMetrics(mt),
	)
	if err != nil {
		return err
	}

	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	return srv
}

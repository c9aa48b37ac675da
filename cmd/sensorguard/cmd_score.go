package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hed1ad/sensorguard/internal/logging"
	"github.com/hed1ad/sensorguard/internal/report"
	"github.com/hed1ad/sensorguard/pkg/dataset"
	"github.com/hed1ad/sensorguard/pkg/io/csv"
	"github.com/hed1ad/sensorguard/pkg/monitor"
	"github.com/hed1ad/sensorguard/pkg/visualize"
)

var (
	scoreOut    string
	scoreImages string
)

var scoreCmd = &cobra.Command{
	Use:   "score FILE",
	Short: "Score one telemetry file and print a per-status summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringP("model", "m", "", "trained model file")
	f.StringP("trainfile", "t", "", "historical telemetry to train on when no model is given")
	f.IntP("num-threads", "n", 1, "parallelism width for model fitting")
	f.StringVar(&scoreOut, "out", "", "scored output file (default <name>-predicted.csv next to FILE)")
	f.StringVar(&scoreImages, "images", "", "also chart every channel into this directory")
}

func runScore(cmd *cobra.Command, args []string) error {
	path := args[0]
	tr, err := prepareModel(cfg)
	if err != nil {
		return err
	}

	codec := csv.New(csv.WithSchema(cfg.Schema))
	t, err := codec.Read(path)
	if err != nil {
		return err
	}
	if _, err := dataset.Clean(t); err != nil {
		return fmt.Errorf("clean %s: %w", path, err)
	}
	if err := tr.model.Score(t); err != nil {
		return fmt.Errorf("score %s: %w", path, err)
	}

	if scoreImages != "" {
		r := visualize.New(visualize.NewGonumPlotter(),
			visualize.WithLogger(logging.New(logger, "visualize")),
			visualize.WithWorkers(cfg.RenderWorkers),
		)
		if _, err := r.Render(t, scoreImages); err != nil {
			return err
		}
	}

	out := scoreOut
	if out == "" {
		ext := filepath.Ext(path)
		out = strings.TrimSuffix(path, ext) + monitor.DefaultOutputSuffix + ext
	}
	if err := codec.Write(t, out); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.Statuses(t))
	logger.Info("scored", "file", path, "output", out, "anomalies", len(t.FlaggedRows()))
	return nil
}

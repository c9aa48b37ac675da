package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/sensorguard/internal/report"
)

var trainOut string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the detector on the training window and report held-out results",
	RunE:  runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringP("trainfile", "t", "", "historical telemetry to train on")
	f.IntP("num-threads", "n", 1, "parallelism width for model fitting")
	f.StringVar(&trainOut, "out", "", "save the trained model to this file")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	c := cfg
	c.ModelFile = ""
	tr, err := prepareModel(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Training(tr.model, tr.split.Train.Len(), tr.eval))

	if trainOut == "" {
		return nil
	}
	f, err := os.Create(trainOut)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := tr.model.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("save model: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("model saved", "path", trainOut)
	return nil
}

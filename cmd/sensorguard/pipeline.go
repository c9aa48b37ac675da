package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hed1ad/sensorguard/internal/config"
	"github.com/hed1ad/sensorguard/internal/logging"
	"github.com/hed1ad/sensorguard/pkg/dataset"
	"github.com/hed1ad/sensorguard/pkg/detectors/iforest"
	"github.com/hed1ad/sensorguard/pkg/io/csv"
	"github.com/hed1ad/sensorguard/pkg/model"
)

// trained is a model plus, when it was fit in this process, its split.
type trained struct {
	model *model.Model
	split *model.Split
	eval  model.Evaluation
}

func modelOptions(c config.Config) []model.Option {
	return []model.Option{
		model.WithDetector(iforest.Factory(c.ForestOptions()...)),
		model.WithLogger(logging.New(logger, "model")),
	}
}

// prepareModel loads the model file when configured and otherwise trains
// from the training file. Any error here must stop startup.
func prepareModel(c config.Config) (*trained, error) {
	if c.ModelFile != "" {
		f, err := os.Open(c.ModelFile)
		if err != nil {
			return nil, fmt.Errorf("open model: %w", err)
		}
		defer f.Close()
		m, err := model.Load(f, modelOptions(c)...)
		if err != nil {
			return nil, err
		}
		logger.Info("model loaded", "path", c.ModelFile, "features", len(m.Features()), "contamination", m.Contamination())
		return &trained{model: m}, nil
	}
	if c.TrainFile == "" {
		return nil, errors.New("either --trainfile or --model is required")
	}

	codec := csv.New(csv.WithSchema(c.Schema))
	t, err := codec.Read(c.TrainFile)
	if err != nil {
		return nil, err
	}
	dropped, err := dataset.Clean(t)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", c.TrainFile, err)
	}
	if len(dropped) > 0 {
		logger.Info("dropped sparse columns", "file", c.TrainFile, "columns", dropped)
	}

	split, err := model.SplitByTime(t, c.Windows.Train, c.Windows.Test)
	if err != nil {
		return nil, err
	}
	m := model.New(modelOptions(c)...)
	if err := m.Train(split); err != nil {
		return nil, fmt.Errorf("train on %s: %w", c.Windows.Train, err)
	}

	out := &trained{model: m, split: split}
	if split.Test.Len() > 0 {
		e, err := m.Evaluate(split.Test)
		if err != nil {
			return nil, fmt.Errorf("evaluate held-out window: %w", err)
		}
		out.eval = e
		logger.Info("held-out evaluation",
			"window", c.Windows.Test.String(),
			"rows", e.Rows,
			"flagged", e.Flagged,
			"precision", e.Precision(),
			"recall", e.Recall(),
		)
	}
	return out, nil
}

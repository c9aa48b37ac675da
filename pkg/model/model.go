// Package model trains a novelty detector on a historical sensor window and
// scores new tables against it.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/sensorguard/pkg/dataset"
	"github.com/hed1ad/sensorguard/pkg/detectors"
	"github.com/hed1ad/sensorguard/pkg/detectors/iforest"
)

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrAlreadyTrained   = errors.New("model already trained")
	ErrEmptyTrainingSet = errors.New("empty training set")
	ErrDegenerateModel  = errors.New("degenerate model")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrInvalidWindow    = errors.New("invalid window")
)

// Model is a novelty detector plus the feature scaling learned with it.
// A Model starts untrained; after a successful Train it is immutable and
// safe for concurrent Score calls.
type Model struct {
	mu      sync.RWMutex
	factory detectors.Factory
	logger  *slog.Logger

	trained       bool
	features      []string
	means         []float64
	scales        []float64
	contamination float64
	normalLabel   string
	detector      detectors.Detector
}

// Option configures a Model.
type Option func(*Model)

// WithDetector sets the detector factory. The default is an Isolation
// Forest with default options.
func WithDetector(f detectors.Factory) Option {
	return func(m *Model) {
		m.factory = f
	}
}

// WithLogger sets the logger used for training summaries.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// New returns an untrained model.
func New(opts ...Option) *Model {
	m := &Model{
		factory: iforest.Factory(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Trained reports whether the model can score.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Features returns the feature columns seen at training time.
func (m *Model) Features() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.features)
}

// Contamination returns the outlier fraction estimated from the training
// window.
func (m *Model) Contamination() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contamination
}

// Train fits the model on the training view of s. The contamination is the
// fraction of training rows not labeled normal. Feature statistics are fit
// on the whole training view, which is standardized in place.
func (m *Model) Train(s *Split) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.trained {
		return ErrAlreadyTrained
	}

	train := s.Train
	n := train.Len()
	if n == 0 {
		return fmt.Errorf("%w: no rows in %s", ErrEmptyTrainingSet, s.TrainWindow)
	}
	if len(train.Features) == 0 {
		return fmt.Errorf("%w: no numeric features", ErrEmptyTrainingSet)
	}

	normalLabel := train.Schema.NormalLabel
	normal := len(train.RowsWithStatus(normalLabel))
	contamination := 1 - float64(normal)/float64(n)
	if !detectors.ValidContamination(contamination) {
		return fmt.Errorf("%w: contamination %g from %d/%d %s rows", ErrDegenerateModel, contamination, normal, n, normalLabel)
	}

	features := slices.Clone(train.Features)
	means := make([]float64, len(features))
	scales := make([]float64, len(features))
	for j, name := range features {
		col := train.Values[name]
		if slices.ContainsFunc(col, dataset.IsMissing) {
			return fmt.Errorf("%w: column %q has missing values", dataset.ErrInsufficientData, name)
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		means[j], scales[j] = mean, std
		for i, v := range col {
			col[i] = (v - mean) / std
		}
	}

	detector := m.factory(contamination)
	if err := detector.Fit(train.FeatureMatrix()); err != nil {
		return fmt.Errorf("fit detector: %w", err)
	}

	m.features = features
	m.means = means
	m.scales = scales
	m.contamination = contamination
	m.normalLabel = normalLabel
	m.detector = detector
	m.trained = true

	m.logger.Info("model trained",
		"rows", n,
		"features", len(features),
		"contamination", contamination,
		"threshold", detector.Threshold(),
	)
	return nil
}

// Score appends the anomaly score and flag columns to t. The features of t
// are standardized with the training statistics; the model is not changed
// and the same input always yields the same output.
func (m *Model) Score(t *dataset.Table) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return ErrNotTrained
	}
	if err := m.checkSchema(t); err != nil {
		return err
	}

	rows := make([][]float64, t.Len())
	for i := range rows {
		rows[i] = make([]float64, len(m.features))
	}
	for j, name := range m.features {
		col := t.Values[name]
		for i, v := range col {
			if dataset.IsMissing(v) {
				return fmt.Errorf("%w: column %q row %d is missing", dataset.ErrInsufficientData, name, i)
			}
			rows[i][j] = (v - m.means[j]) / m.scales[j]
		}
	}

	scores, err := m.detector.Predict(rows)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	threshold := m.detector.Threshold()
	flags := make([]float64, len(scores))
	for i, s := range scores {
		if detectors.IsAnomaly(s, threshold) {
			flags[i] = 1
		}
	}
	t.SetDerived(dataset.ScoreColumn, scores)
	t.SetDerived(dataset.FlagColumn, flags)
	return nil
}

// checkSchema requires t to carry exactly the training features.
func (m *Model) checkSchema(t *dataset.Table) error {
	var missing, extra []string
	for _, name := range m.features {
		if !t.HasFeature(name) {
			missing = append(missing, name)
		}
	}
	for _, name := range t.Features {
		if !slices.Contains(m.features, name) {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("%w: missing %v, unexpected %v", ErrSchemaMismatch, missing, extra)
	}
	return nil
}

// Package detectors provides unsupervised novelty detectors for sensor
// feature matrices.
package detectors

import "errors"

var (
	// ErrNotTrained is returned when a detector is used before Fit or Load.
	ErrNotTrained = errors.New("detector not trained")
	// ErrEmptyData is returned by Fit when there are no samples.
	ErrEmptyData = errors.New("empty training data")
	// ErrContamination is returned when the contamination fraction is not
	// in the open interval (0, 1).
	ErrContamination = errors.New("contamination must be in (0, 1)")
	// ErrDimension is returned when a sample has the wrong number of
	// features.
	ErrDimension = errors.New("feature dimension mismatch")
)

// Detector is the common interface for novelty detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data and calibrates the
	// decision threshold from the configured contamination.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	// Predict never changes the fitted state.
	Predict(data [][]float64) ([]float64, error)

	// Threshold returns the score at or above which a sample is anomalous.
	Threshold() float64

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Factory builds an unfitted detector calibrated for the given
// contamination fraction.
type Factory func(contamination float64) Detector

// IsAnomaly reports whether score crosses threshold.
func IsAnomaly(score, threshold float64) bool {
	return score >= threshold
}

// ValidContamination reports whether c can calibrate a decision boundary.
func ValidContamination(c float64) bool {
	return c > 0 && c < 1
}

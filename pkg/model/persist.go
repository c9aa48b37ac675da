package model

import (
	"encoding/gob"
	"fmt"
	"io"
)

// state is the gob form of a trained model.
type state struct {
	Features      []string
	Means         []float64
	Scales        []float64
	Contamination float64
	NormalLabel   string
	Detector      []byte
}

// Save writes a trained model to w.
func (m *Model) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return ErrNotTrained
	}
	det, err := m.detector.Save()
	if err != nil {
		return fmt.Errorf("save detector: %w", err)
	}
	return gob.NewEncoder(w).Encode(state{
		Features:      m.features,
		Means:         m.means,
		Scales:        m.scales,
		Contamination: m.contamination,
		NormalLabel:   m.normalLabel,
		Detector:      det,
	})
}

// Load reads a model written by Save. The detector factory from opts must
// build the same detector type that was saved.
func Load(r io.Reader, opts ...Option) (*Model, error) {
	var s state
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(s.Features) == 0 || len(s.Means) != len(s.Features) || len(s.Scales) != len(s.Features) {
		return nil, fmt.Errorf("decode model: %w: inconsistent feature statistics", ErrSchemaMismatch)
	}

	m := New(opts...)
	detector := m.factory(s.Contamination)
	if err := detector.Load(s.Detector); err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	m.features = s.Features
	m.means = s.Means
	m.scales = s.Scales
	m.contamination = s.Contamination
	m.normalLabel = s.NormalLabel
	m.detector = detector
	m.trained = true
	return m, nil
}

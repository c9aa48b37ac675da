package model

import (
	"github.com/hed1ad/sensorguard/pkg/dataset"
)

// Evaluation compares anomaly flags with status labels on a scored table.
type Evaluation struct {
	Rows int
	// Flagged counts rows the detector marked anomalous.
	Flagged int
	// Abnormal counts rows whose status is not the normal label.
	Abnormal int
	// Hits counts rows both flagged and abnormal.
	Hits int
}

// Precision is the share of flagged rows that are abnormal.
func (e Evaluation) Precision() float64 {
	if e.Flagged == 0 {
		return 0
	}
	return float64(e.Hits) / float64(e.Flagged)
}

// Recall is the share of abnormal rows that were flagged.
func (e Evaluation) Recall() float64 {
	if e.Abnormal == 0 {
		return 0
	}
	return float64(e.Hits) / float64(e.Abnormal)
}

// FlaggedRate is the share of rows flagged.
func (e Evaluation) FlaggedRate() float64 {
	if e.Rows == 0 {
		return 0
	}
	return float64(e.Flagged) / float64(e.Rows)
}

// Evaluate scores a copy of t, typically the held-out window, and compares
// the flags with its status labels. t is not modified.
func (m *Model) Evaluate(t *dataset.Table) (Evaluation, error) {
	scored := t.Clone()
	if err := m.Score(scored); err != nil {
		return Evaluation{}, err
	}

	m.mu.RLock()
	normal := m.normalLabel
	m.mu.RUnlock()

	e := Evaluation{Rows: scored.Len()}
	flags := scored.Values[dataset.FlagColumn]
	for i, status := range scored.Status {
		flagged := flags[i] == 1
		abnormal := status != normal
		if flagged {
			e.Flagged++
		}
		if abnormal {
			e.Abnormal++
		}
		if flagged && abnormal {
			e.Hits++
		}
	}
	return e, nil
}

package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// MissingFractions returns the fraction of missing values per feature
// column. An empty table reports zero for every column.
func (t *Table) MissingFractions() map[string]float64 {
	out := make(map[string]float64, len(t.Features))
	n := t.Len()
	for _, name := range t.Features {
		if n == 0 {
			out[name] = 0
			continue
		}
		missing := 0
		for _, v := range t.Values[name] {
			if IsMissing(v) {
				missing++
			}
		}
		out[name] = float64(missing) / float64(n)
	}
	return out
}

// Clean drops every feature column whose missing fraction exceeds
// MaxMissingFraction and fills the remaining gaps with the column mean.
// The status column is never dropped. It returns the dropped column names.
//
// Clean is idempotent: a clean table is left untouched.
func Clean(t *Table) ([]string, error) {
	fractions := t.MissingFractions()

	var dropped []string
	kept := make([]string, 0, len(t.Features))
	means := make(map[string]float64)
	for _, name := range t.Features {
		if fractions[name] > MaxMissingFraction {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)

		col := t.Values[name]
		valid := make([]float64, 0, len(col))
		for _, v := range col {
			if !IsMissing(v) {
				valid = append(valid, v)
			}
		}
		if len(valid) == 0 {
			return nil, fmt.Errorf("%w: column %q has no valid values", ErrInsufficientData, name)
		}
		if len(valid) < len(col) {
			means[name] = stat.Mean(valid, nil)
		}
	}

	// The table is only changed once every kept column is known to be
	// repairable.
	for _, name := range dropped {
		delete(t.Values, name)
	}
	t.Features = kept
	for name, mean := range means {
		col := t.Values[name]
		for i, v := range col {
			if IsMissing(v) {
				col[i] = mean
			}
		}
	}

	return dropped, nil
}

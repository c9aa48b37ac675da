// Package dataset provides the time-indexed sensor table shared by every
// pipeline stage, together with its cleaning rules.
package dataset

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"
)

var (
	// ErrIO reports an unreadable or unwritable path.
	ErrIO = errors.New("dataset io")
	// ErrFormat reports a malformed table: missing or unparsable timestamp,
	// non-numeric feature cell, ragged row.
	ErrFormat = errors.New("dataset format")
	// ErrInsufficientData reports a feature column with no valid value left
	// to impute from.
	ErrInsufficientData = errors.New("insufficient data")
)

// Default column names and labels used by the bundled pump-sensor files.
const (
	DefaultTimestampColumn = "timestamp"
	DefaultStatusColumn    = "machine_status"
	DefaultChannelPrefix   = "sensor"

	StatusNormal     = "NORMAL"
	StatusBroken     = "BROKEN"
	StatusRecovering = "RECOVERING"

	// ScoreColumn and FlagColumn are appended by scoring.
	ScoreColumn = "anomaly_score"
	FlagColumn  = "anomaly"

	// MaxMissingFraction is the missing-value fraction above which Clean
	// drops a column.
	MaxMissingFraction = 0.10
)

// Schema names the special columns and labels of a table.
type Schema struct {
	TimestampColumn string `yaml:"timestamp_column"`
	StatusColumn    string `yaml:"status_column"`
	ChannelPrefix   string `yaml:"channel_prefix"`
	NormalLabel     string `yaml:"normal_label"`
	BrokenLabel     string `yaml:"broken_label"`
	RecoveringLabel string `yaml:"recovering_label"`
}

// DefaultSchema returns the schema of the pump-sensor telemetry files.
func DefaultSchema() Schema {
	return Schema{
		TimestampColumn: DefaultTimestampColumn,
		StatusColumn:    DefaultStatusColumn,
		ChannelPrefix:   DefaultChannelPrefix,
		NormalLabel:     StatusNormal,
		BrokenLabel:     StatusBroken,
		RecoveringLabel: StatusRecovering,
	}
}

// Table is an ordered sequence of timestamped rows stored column-wise.
// Missing numeric values are NaN.
type Table struct {
	Schema Schema

	Timestamps []time.Time
	// Features lists the numeric feature columns in file order.
	Features []string
	// Derived lists columns appended by scoring. They are numeric but never
	// treated as features.
	Derived []string
	Values  map[string][]float64
	Status  []string
}

// New returns an empty table with the given schema.
func New(schema Schema) *Table {
	return &Table{
		Schema: schema,
		Values: make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Timestamps)
}

// Column returns the values of a feature or derived column.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.Values[name]
	return v, ok
}

// HasFeature reports whether name is a feature column.
func (t *Table) HasFeature(name string) bool {
	return slices.Contains(t.Features, name)
}

// SetDerived stores a derived column, replacing any previous values.
func (t *Table) SetDerived(name string, values []float64) {
	if _, ok := t.Values[name]; !ok {
		t.Derived = append(t.Derived, name)
	}
	t.Values[name] = values
}

// FeatureMatrix returns the feature values row by row, in Features order.
func (t *Table) FeatureMatrix() [][]float64 {
	rows := make([][]float64, t.Len())
	for i := range rows {
		row := make([]float64, len(t.Features))
		for j, name := range t.Features {
			row[j] = t.Values[name][i]
		}
		rows[i] = row
	}
	return rows
}

// Select returns a new table holding the rows at idx, in that order.
func (t *Table) Select(idx []int) *Table {
	out := New(t.Schema)
	out.Features = append([]string(nil), t.Features...)
	out.Derived = append([]string(nil), t.Derived...)
	out.Timestamps = make([]time.Time, len(idx))
	out.Status = make([]string, len(idx))
	for i, r := range idx {
		out.Timestamps[i] = t.Timestamps[r]
		out.Status[i] = t.Status[r]
	}
	for name, col := range t.Values {
		v := make([]float64, len(idx))
		for i, r := range idx {
			v[i] = col[r]
		}
		out.Values[name] = v
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	return t.Select(idx)
}

// Channels returns the feature columns named with the channel prefix.
func (t *Table) Channels() []string {
	var out []string
	for _, f := range t.Features {
		if IsChannel(f, t.Schema.ChannelPrefix) {
			out = append(out, f)
		}
	}
	return out
}

// RowsWithStatus returns the indexes of rows labeled status.
func (t *Table) RowsWithStatus(status string) []int {
	var idx []int
	for i, s := range t.Status {
		if s == status {
			idx = append(idx, i)
		}
	}
	return idx
}

// IsChannel reports whether a column name follows the channel naming
// convention.
func IsChannel(name, prefix string) bool {
	return prefix != "" && strings.HasPrefix(name, prefix)
}

// Missing returns the value stored for a missing cell.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is a missing value.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// FlaggedRows returns the indexes of rows marked anomalous by scoring.
// An unscored table has none.
func (t *Table) FlaggedRows() []int {
	var idx []int
	for i, v := range t.Values[FlagColumn] {
		if v == 1 {
			idx = append(idx, i)
		}
	}
	return idx
}

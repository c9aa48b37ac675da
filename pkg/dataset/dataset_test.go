package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

// newTable builds a table with one row per hour.
func newTable(status []string, cols map[string][]float64, order ...string) *Table {
	t := New(DefaultSchema())
	start := time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := range status {
		t.Timestamps = append(t.Timestamps, start.Add(time.Duration(i)*time.Hour))
	}
	t.Status = status
	t.Features = order
	for name, v := range cols {
		t.Values[name] = v
	}
	return t
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestClean(t *testing.T) {
	tests := []struct {
		name        string
		cols        map[string][]float64
		order       []string
		wantDropped []string
		wantKept    []string
		wantValues  map[string][]float64
	}{
		{
			name: "no missing values",
			cols: map[string][]float64{
				"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
			order:      []string{"sensor_00"},
			wantKept:   []string{"sensor_00"},
			wantValues: map[string][]float64{"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		},
		{
			name: "exactly ten percent missing is imputed",
			cols: map[string][]float64{
				"sensor_00": {1, 1, 1, 1, nan, 3, 3, 3, 3, 2},
			},
			order:      []string{"sensor_00"},
			wantKept:   []string{"sensor_00"},
			wantValues: map[string][]float64{"sensor_00": {1, 1, 1, 1, 2, 3, 3, 3, 3, 2}},
		},
		{
			name: "above ten percent missing is dropped",
			cols: map[string][]float64{
				"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
				"sensor_15": {nan, nan, 1, 1, 1, 1, 1, 1, 1, 1},
			},
			order:       []string{"sensor_00", "sensor_15"},
			wantDropped: []string{"sensor_15"},
			wantKept:    []string{"sensor_00"},
			wantValues:  map[string][]float64{"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		},
		{
			name: "fully missing column is dropped not repaired",
			cols: map[string][]float64{
				"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
				"sensor_50": {nan, nan, nan, nan, nan, nan, nan, nan, nan, nan},
			},
			order:       []string{"sensor_50", "sensor_00"},
			wantDropped: []string{"sensor_50"},
			wantKept:    []string{"sensor_00"},
			wantValues:  map[string][]float64{"sensor_00": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := repeat(StatusNormal, 10)
			status[3] = ""
			tbl := newTable(status, tt.cols, tt.order...)

			dropped, err := Clean(tbl)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDropped, dropped)
			assert.Equal(t, tt.wantKept, tbl.Features)
			assert.Len(t, tbl.Status, 10, "status column is never dropped")
			for name, want := range tt.wantValues {
				assert.Equal(t, want, tbl.Values[name])
			}
			for _, name := range tt.wantDropped {
				_, ok := tbl.Values[name]
				assert.False(t, ok, "dropped column %s still has values", name)
			}
		})
	}
}

func TestCleanLeavesNoMissingValues(t *testing.T) {
	tbl := newTable(repeat(StatusNormal, 20), map[string][]float64{
		"sensor_00": {nan, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
		"sensor_01": {nan, nan, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
		"sensor_02": {nan, nan, nan, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
	}, "sensor_00", "sensor_01", "sensor_02")
	before := tbl.MissingFractions()

	_, err := Clean(tbl)
	require.NoError(t, err)

	for _, name := range tbl.Features {
		assert.LessOrEqual(t, before[name], MaxMissingFraction)
		for i, v := range tbl.Values[name] {
			assert.False(t, IsMissing(v), "%s[%d] is missing after Clean", name, i)
		}
	}
	assert.Equal(t, []string{"sensor_00", "sensor_01"}, tbl.Features)
}

func TestCleanIdempotent(t *testing.T) {
	tbl := newTable(repeat(StatusNormal, 10), map[string][]float64{
		"sensor_00": {1, nan, 3, 4, 5, 6, 7, 8, 9, 10},
		"sensor_01": {nan, nan, nan, 4, 5, 6, 7, 8, 9, 10},
	}, "sensor_00", "sensor_01")

	_, err := Clean(tbl)
	require.NoError(t, err)
	once := tbl.Clone()

	dropped, err := Clean(tbl)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	if diff := cmp.Diff(once, tbl); diff != "" {
		t.Errorf("second Clean changed the table (-once +twice):\n%s", diff)
	}
}

func TestCleanInsufficientData(t *testing.T) {
	tbl := newTable(nil, map[string][]float64{"sensor_00": nil}, "sensor_00")

	_, err := Clean(tbl)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCleanFailureLeavesTableUntouched(t *testing.T) {
	// sensor_00 would be dropped; sensor_01 has no value to impute from.
	tbl := newTable(repeat(StatusNormal, 4), map[string][]float64{
		"sensor_00": {nan, nan, nan, nan},
		"sensor_01": {},
	}, "sensor_00", "sensor_01")

	_, err := Clean(tbl)
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, []string{"sensor_00", "sensor_01"}, tbl.Features)
	assert.Len(t, tbl.Values, 2)
	assert.Len(t, tbl.Values["sensor_00"], 4)
}

func TestSelect(t *testing.T) {
	tbl := newTable(
		[]string{StatusNormal, StatusBroken, StatusRecovering, StatusNormal},
		map[string][]float64{"sensor_00": {0, 1, 2, 3}, "temp": {10, 11, 12, 13}},
		"sensor_00", "temp",
	)

	sub := tbl.Select([]int{3, 1})
	require.Equal(t, 2, sub.Len())
	assert.Equal(t, []float64{3, 1}, sub.Values["sensor_00"])
	assert.Equal(t, []string{StatusNormal, StatusBroken}, sub.Status)
	assert.True(t, sub.Timestamps[0].Equal(tbl.Timestamps[3]))

	sub.Values["sensor_00"][0] = 99
	assert.Equal(t, 3.0, tbl.Values["sensor_00"][3], "Select must copy")

	assert.Equal(t, []string{"sensor_00"}, tbl.Channels())
	assert.Equal(t, []int{1}, tbl.RowsWithStatus(StatusBroken))
}

func TestDerivedColumns(t *testing.T) {
	tbl := newTable(repeat(StatusNormal, 3), map[string][]float64{"sensor_00": {1, 2, 3}}, "sensor_00")
	assert.Empty(t, tbl.FlaggedRows())

	tbl.SetDerived(FlagColumn, []float64{0, 1, 1})
	tbl.SetDerived(FlagColumn, []float64{1, 0, 1})

	assert.Equal(t, []string{FlagColumn}, tbl.Derived)
	assert.Equal(t, []int{0, 2}, tbl.FlaggedRows())
	assert.False(t, tbl.HasFeature(FlagColumn))
}

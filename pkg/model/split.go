package model

import (
	"fmt"
	"time"

	"github.com/hed1ad/sensorguard/pkg/dataset"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Overlaps reports whether the two windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.DateTime), w.End.Format(time.DateTime))
}

// Split is a training window and a held-out window cut from one table.
// Both tables share the source schema and never share a row.
type Split struct {
	Train       *dataset.Table
	Test        *dataset.Table
	TrainWindow Window
	TestWindow  Window
}

// SplitByTime selects the rows of t falling in train and in test. Rows
// outside both windows are dropped. Selection compares timestamp values, so
// unsorted input is split correctly.
func SplitByTime(t *dataset.Table, train, test Window) (*Split, error) {
	if !train.Start.Before(train.End) {
		return nil, fmt.Errorf("%w: training window %s is empty", ErrInvalidWindow, train)
	}
	if !test.Start.Before(test.End) {
		return nil, fmt.Errorf("%w: held-out window %s is empty", ErrInvalidWindow, test)
	}
	if train.Overlaps(test) {
		return nil, fmt.Errorf("%w: training window %s overlaps held-out window %s", ErrInvalidWindow, train, test)
	}

	var trainIdx, testIdx []int
	for i, ts := range t.Timestamps {
		switch {
		case train.Contains(ts):
			trainIdx = append(trainIdx, i)
		case test.Contains(ts):
			testIdx = append(testIdx, i)
		}
	}

	return &Split{
		Train:       t.Select(trainIdx),
		Test:        t.Select(testIdx),
		TrainWindow: train,
		TestWindow:  test,
	}, nil
}

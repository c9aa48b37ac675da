package csv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hed1ad/sensorguard/pkg/dataset"
)

// Write serializes t to path. The file is written to a temporary sibling
// and renamed into place, so readers never observe a partial table.
func (c *Codec) Write(t *dataset.Table, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err := c.encode(bw, t); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", dataset.ErrIO, path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", dataset.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %w", dataset.ErrIO, path, err)
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}
	return nil
}

// encode writes timestamp, features, status and derived columns in that
// order. Missing values are written as empty cells.
func (c *Codec) encode(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = c.comma

	header := make([]string, 0, len(t.Features)+len(t.Derived)+2)
	header = append(header, t.Schema.TimestampColumn)
	header = append(header, t.Features...)
	header = append(header, t.Schema.StatusColumn)
	header = append(header, t.Derived...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		record = record[:0]
		record = append(record, t.Timestamps[i].UTC().Format(TimestampLayout))
		for _, name := range t.Features {
			record = append(record, formatValue(t.Values[name][i]))
		}
		record = append(record, t.Status[i])
		for _, name := range t.Derived {
			record = append(record, formatValue(t.Values[name][i]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	if dataset.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

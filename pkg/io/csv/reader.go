// Package csv reads and writes sensor tables as delimited text files.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hed1ad/sensorguard/pkg/dataset"
	sgio "github.com/hed1ad/sensorguard/pkg/io"
)

// TimestampLayout is the layout used when writing timestamps. Timestamps
// are written in UTC; fractional seconds are kept and omitted when zero.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// timestampLayouts are tried in order when parsing.
var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// missingTokens are cell values read as missing.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

// Codec reads and writes CSV sensor tables.
type Codec struct {
	schema dataset.Schema
	comma  rune
}

// Option configures a Codec.
type Option func(*Codec)

// WithSchema sets the column names and labels.
func WithSchema(s dataset.Schema) Option {
	return func(c *Codec) {
		c.schema = s
	}
}

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(c *Codec) {
		c.comma = r
	}
}

// New creates a CSV codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		schema: dataset.DefaultSchema(),
		comma:  ',',
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ sgio.ReadWriter = (*Codec)(nil)

// Read parses a headered CSV file. Rows keep their file order.
func (c *Codec) Read(path string) (*dataset.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrIO, err)
	}
	defer file.Close()

	t, err := c.decode(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// columnKind tells decode what to do with each field.
type columnKind int

const (
	kindSkip columnKind = iota
	kindTimestamp
	kindStatus
	kindFeature
	kindDerived
)

func (c *Codec) decode(r io.Reader) (*dataset.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = c.comma

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", dataset.ErrFormat)
	}
	if err != nil {
		return nil, wrapParseErr(err)
	}

	kinds, err := c.classify(headers)
	if err != nil {
		return nil, err
	}

	t := dataset.New(c.schema)
	for i, h := range headers {
		switch kinds[i] {
		case kindFeature:
			t.Features = append(t.Features, h)
			t.Values[h] = nil
		case kindDerived:
			t.Derived = append(t.Derived, h)
			t.Values[h] = nil
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapParseErr(err)
		}
		line++

		status := ""
		for i, val := range record {
			switch kinds[i] {
			case kindTimestamp:
				ts, err := parseTimestamp(val)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", dataset.ErrFormat, line, err)
				}
				t.Timestamps = append(t.Timestamps, ts)
			case kindStatus:
				status = strings.TrimSpace(val)
			case kindFeature, kindDerived:
				v, err := parseValue(val)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d column %q: %v", dataset.ErrFormat, line, headers[i], err)
				}
				t.Values[headers[i]] = append(t.Values[headers[i]], v)
			}
		}
		t.Status = append(t.Status, status)
	}

	return t, nil
}

// classify resolves the role of every header. A leading unnamed column is
// a row index written by dataframe tools and is skipped.
func (c *Codec) classify(headers []string) ([]columnKind, error) {
	kinds := make([]columnKind, len(headers))
	seen := make(map[string]bool, len(headers))
	hasTimestamp := false

	for i, raw := range headers {
		h := strings.TrimSpace(raw)
		headers[i] = h
		switch {
		case i == 0 && (h == "" || strings.HasPrefix(h, "Unnamed:")):
			kinds[i] = kindSkip
			continue
		case h == "":
			return nil, fmt.Errorf("%w: unnamed column at position %d", dataset.ErrFormat, i)
		case seen[h]:
			return nil, fmt.Errorf("%w: duplicate column %q", dataset.ErrFormat, h)
		case h == c.schema.TimestampColumn:
			kinds[i] = kindTimestamp
			hasTimestamp = true
		case h == c.schema.StatusColumn:
			kinds[i] = kindStatus
		case h == dataset.ScoreColumn || h == dataset.FlagColumn:
			kinds[i] = kindDerived
		case !safeName(h):
			return nil, fmt.Errorf("%w: column name %q is not a plain file name", dataset.ErrFormat, h)
		default:
			kinds[i] = kindFeature
		}
		seen[h] = true
	}

	if !hasTimestamp {
		return nil, fmt.Errorf("%w: missing timestamp column %q", dataset.ErrFormat, c.schema.TimestampColumn)
	}
	return kinds, nil
}

// safeName reports whether a feature column name can be used as a file
// name inside a chart directory.
func safeName(h string) bool {
	return !strings.ContainsAny(h, `/\`) && h != "." && h != ".."
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// parseValue converts a cell to float, mapping missing tokens to NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if missingTokens[s] {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func wrapParseErr(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %w", dataset.ErrFormat, err)
	}
	return fmt.Errorf("%w: %w", dataset.ErrIO, err)
}

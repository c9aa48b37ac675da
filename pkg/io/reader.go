// Package io provides input/output contracts for sensor tables.
package io

import "github.com/hed1ad/sensorguard/pkg/dataset"

// Reader loads a table from a file.
type Reader interface {
	// Read parses the file at path into a table in file row order.
	Read(path string) (*dataset.Table, error)
}

// Writer persists a table to a file.
type Writer interface {
	// Write serializes t to path, replacing any existing file.
	Write(t *dataset.Table, path string) error
}

// ReadWriter groups Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// Package ecsv reads and writes ECSV files: delimited text tables carrying a
// YAML metadata header in comment lines. Two header generations are
// recognized: a legacy flat keyword map and the current self-describing form
// with nested Observer/Location/Photometer/Observation groups.
package ecsv

import (
	"fmt"
	"strconv"
)

// Column describes one table column.
type Column struct {
	Name     string `yaml:"name"`
	Datatype string `yaml:"datatype"`
	Unit     string `yaml:"unit,omitempty"`
}

// Row holds one data row as raw cell text keyed by column name. Absent or
// empty cells are reported as missing by the typed accessors.
type Row map[string]string

// Meta is the table metadata bag. Exactly one generation is populated:
// Keywords for legacy files, the four nested groups for current files.
type Meta struct {
	Keywords    map[string]string
	Observer    map[string]any
	Location    map[string]any
	Photometer  map[string]any
	Observation map[string]any
}

// Legacy reports whether the metadata uses the flat keyword header.
func (m Meta) Legacy() bool { return m.Keywords != nil }

// Current reports whether all four nested metadata groups are present.
func (m Meta) Current() bool {
	return m.Observer != nil && m.Location != nil && m.Photometer != nil && m.Observation != nil
}

// Table is an in-memory annotated table: typed rows plus a metadata bag.
type Table struct {
	Columns []Column
	Rows    []Row
	Meta    Meta
}

// ParseError reports malformed or unrecognized file content.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "ecsv: " + e.Reason }

func parseErrf(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Text returns the raw cell value, "" when absent.
func (r Row) Text(name string) string { return r[name] }

// Int parses a required integer cell.
func (r Row) Int(name string) (int, error) {
	v := r[name]
	if v == "" {
		return 0, parseErrf("missing column %q", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, parseErrf("column %q: %v", name, err)
	}
	return n, nil
}

// Float parses a required float cell.
func (r Row) Float(name string) (float64, error) {
	v := r[name]
	if v == "" {
		return 0, parseErrf("missing column %q", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, parseErrf("column %q: %v", name, err)
	}
	return f, nil
}

// OptFloat parses an optional float cell, returning nil when absent.
func (r Row) OptFloat(name string) (*float64, error) {
	v := r[name]
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, parseErrf("column %q: %v", name, err)
	}
	return &f, nil
}

// FloatColumn returns all values of a column parsed as floats.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		f, err := row.Float(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, parseErrf("column %q: no rows", name)
	}
	return out, nil
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

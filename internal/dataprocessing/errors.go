package dataprocessing

import (
	"fmt"
	"strings"
)

// FieldKind names the coercion applied to a cell.
type FieldKind string

const (
	KindCurrencyInt FieldKind = "CURRENCY_INT"
	KindDate        FieldKind = "DATE"
	KindDirection   FieldKind = "DIRECTION"
)

// MalformedFieldError reports one cell that could not be coerced.
type MalformedFieldError struct {
	Column string
	Value  string
	Kind   FieldKind
	Reason string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("column %q: cannot read %q as %s: %s", e.Column, e.Value, e.Kind, e.Reason)
}

// SchemaError reports required columns missing from a source header.
// It is raised before any row of the batch is processed.
type SchemaError struct {
	Source  string
	Missing []string
	// Present lists the cleaned header of the source, for the user to compare.
	Present []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
}

// RowError reports a row that could not become a trade record. Row is the
// 1-based data row number within Source (the header is not counted).
type RowError struct {
	Source string
	Row    int
	Column string
	Value  string
	Cause  error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Cause)
	}
	return fmt.Sprintf("%s row %d, column %q (value %q): %v", e.Source, e.Row, e.Column, e.Value, e.Cause)
}

func (e *RowError) Unwrap() error {
	return e.Cause
}

// EmptyResultError reports that no record survived normalization. The
// statistics of an empty result are all undefined.
type EmptyResultError struct {
	Sources  []string
	RowsRead int
	Dropped  int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no trades after normalization (%d rows read, %d dropped)", e.RowsRead, e.Dropped)
}

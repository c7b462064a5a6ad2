package dataprocessing

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DefaultDateLayout is the calendar format of exported ledgers.
const DefaultDateLayout = "2006-01-02T15:04:05"

// maxDaySerial is 9999-12-31 in the 1900 date system.
const maxDaySerial = 2958465

// DateResolver turns a ledger date cell into a time in the business zone.
//
// Cells come either as an escaped literal such as ="2024-01-01T09:00:00" or
// as a spreadsheet day serial such as 45292.375. Literals are tried first.
type DateResolver struct {
	layout   string
	location *time.Location
}

// NewDateResolver returns a resolver for one calendar layout and zone.
func NewDateResolver(layout string, location *time.Location) (*DateResolver, error) {
	if layout == "" {
		layout = DefaultDateLayout
	}
	if location == nil {
		return nil, errors.New("date resolver: business location is required")
	}
	return &DateResolver{layout: layout, location: location}, nil
}

// Layout returns the calendar layout used for literals and for formatting.
func (d *DateResolver) Layout() string { return d.layout }

// Location returns the business zone.
func (d *DateResolver) Location() *time.Location { return d.location }

// Resolve parses raw. A literal without zone information is taken as wall
// clock time in the business zone, never as UTC. Results are rounded to the
// second, the precision of the export layout.
func (d *DateResolver) Resolve(column, raw string) (time.Time, error) {
	s := unescapeCell(raw)
	if s == "" {
		return time.Time{}, &MalformedFieldError{Column: column, Value: raw, Kind: KindDate, Reason: "empty value"}
	}

	if t, err := time.ParseInLocation(d.layout, s, d.location); err == nil {
		return t.In(d.location).Round(time.Second), nil
	}

	if t, ok := d.fromSerial(s); ok {
		return t, nil
	}

	return time.Time{}, &MalformedFieldError{
		Column: column,
		Value:  raw,
		Kind:   KindDate,
		Reason: "matches neither layout " + d.layout + " nor a day serial",
	}
}

// Format renders t in the business zone with the resolver's layout.
func (d *DateResolver) Format(t time.Time) string {
	return t.In(d.location).Format(d.layout)
}

func (d *DateResolver) fromSerial(s string) (time.Time, bool) {
	if !isDaySerial(s) {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial > maxDaySerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	// The serial is a zone-less wall clock: rebuild it in the business zone.
	t = t.Round(time.Second)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, d.location), true
}

// isDaySerial reports whether s is plain decimal digits with an optional
// fractional part. Signs, exponents and hex floats are not serials.
func isDaySerial(s string) bool {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !allDigits(whole) {
		return false
	}
	return !hasFrac || allDigits(frac)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// unescapeCell drops the ="..." wrapper spreadsheets use to keep a value
// from being reinterpreted, then trims whitespace.
func unescapeCell(raw string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `="`))
}

// Package timeframe parses optional, inclusive query ranges.
package timeframe

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const dateOnly = "2006-01-02"

// Range is an inclusive time window. A nil bound is open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Scope restricts a query on column to the range.
func (r Range) Scope(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if r.From != nil {
			db = db.Where(column+" >= ?", r.From.UTC())
		}
		if r.To != nil {
			db = db.Where(column+" <= ?", r.To.UTC())
		}
		return db
	}
}

// Parse builds a Range from start and end query values. Either may be empty.
// Values are RFC 3339 timestamps or YYYY-MM-DD dates interpreted in loc; a
// date-only end covers the whole day.
func Parse(start, end string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}

	var r Range
	if start = strings.TrimSpace(start); start != "" {
		from, err := parseBound(start, loc, false)
		if err != nil {
			return Range{}, fmt.Errorf("invalid start_date: %w", err)
		}
		r.From = &from
	}
	if end = strings.TrimSpace(end); end != "" {
		to, err := parseBound(end, loc, true)
		if err != nil {
			return Range{}, fmt.Errorf("invalid end_date: %w", err)
		}
		r.To = &to
	}

	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return Range{}, fmt.Errorf("end_date %s is before start_date %s", end, start)
	}
	return r, nil
}

func parseBound(value string, loc *time.Location, isEnd bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}

	date, err := time.ParseInLocation(dateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", value)
	}
	if isEnd {
		date = time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, loc)
	}
	return date.UTC(), nil
}

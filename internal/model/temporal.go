package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidPeriod is returned when an end date precedes its start date.
var ErrInvalidPeriod = eris.New("end date is before start date")

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returning a pointer, convenient for optional bounds.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

// TruncateDate drops the clock part of t, keeping its calendar day.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse date %q", s)
	}
	return t, nil
}

// ValidatePeriod rejects a period whose end precedes its start. Open bounds are always valid.
func ValidatePeriod(start, end *time.Time) error {
	if start != nil && end != nil && TruncateDate(*end).Before(TruncateDate(*start)) {
		return eris.Wrapf(ErrInvalidPeriod, "start %s, end %s", start.Format(DateLayout), end.Format(DateLayout))
	}
	return nil
}

// ActiveAsOf is the temporal-validity-with-fallback policy. When neither bound
// is set the legacy flag decides. Otherwise asOf must fall inside
// [start, end], with a nil bound treated as open-ended, and the flag is ignored.
func ActiveAsOf(start, end *time.Time, flag bool, asOf time.Time) bool {
	if start == nil && end == nil {
		return flag
	}
	day := TruncateDate(asOf)
	if start != nil && day.Before(TruncateDate(*start)) {
		return false
	}
	if end != nil && day.After(TruncateDate(*end)) {
		return false
	}
	return true
}

// OverlapsPeriod reports whether [start, end] intersects the range
// [from, to]. A nil to means the range is still open. The same flag fallback
// as ActiveAsOf applies when start and end are both unset.
func OverlapsPeriod(start, end *time.Time, flag bool, from time.Time, to *time.Time) bool {
	if start == nil && end == nil {
		return flag
	}
	if to != nil && start != nil && TruncateDate(*start).After(TruncateDate(*to)) {
		return false
	}
	if end != nil && TruncateDate(*end).Before(TruncateDate(from)) {
		return false
	}
	return true
}

package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// PeriodType selects how long a budgeting period runs.
type PeriodType string

const (
	Weekly   PeriodType = "weekly"
	Biweekly PeriodType = "biweekly"
	Monthly  PeriodType = "monthly"
)

// ErrMissingAnchor is returned when a biweekly window is requested without
// an anchor date. Biweekly is the one period type that cannot default
// itself: without a fixed reference Monday there is no way to align blocks.
var ErrMissingAnchor = errors.New("biweekly period requires an anchor date")

// ParsePeriodType maps a stored string to a PeriodType.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case Weekly, Biweekly, Monthly:
		return PeriodType(s), nil
	}
	return "", fmt.Errorf("unknown period type %q", s)
}

// PeriodWindow is the current budgeting period. Start is inclusive, End is
// exclusive; an instant exactly on a boundary belongs to the later window.
// Local bounds are midnights in the plan's timezone, UTC bounds are the
// same instants re-expressed in UTC.
type PeriodWindow struct {
	StartUTC   time.Time
	EndUTC     time.Time
	StartLocal time.Time
	EndLocal   time.Time
	Type       PeriodType
}

// Contains reports whether the instant t falls inside the window, compared
// on local calendar dates to match the window's local framing.
func (w PeriodWindow) Contains(t time.Time) bool {
	local := midnight(t.In(w.StartLocal.Location()))
	return !local.Before(w.StartLocal) && local.Before(w.EndLocal)
}

// ComputeWindow returns the period containing now.
//
// All day arithmetic happens on local calendar dates, never on raw UTC
// deltas, so windows stay aligned to local midnights across DST
// transitions. anchorUTC is required for Biweekly and must represent the
// anchor Monday; it is ignored for the other period types.
func ComputeWindow(periodType PeriodType, now time.Time, loc *time.Location, anchorUTC *time.Time) (PeriodWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	var startLocal, endLocal time.Time
	switch periodType {
	case Monthly:
		startLocal = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		endLocal = startLocal.AddDate(0, 1, 0)

	case Weekly:
		day := midnight(local)
		// Monday starts the week; Sunday is day 6, not day -1.
		back := (int(day.Weekday()) + 6) % 7
		startLocal = day.AddDate(0, 0, -back)
		endLocal = startLocal.AddDate(0, 0, 7)

	case Biweekly:
		if anchorUTC == nil || anchorUTC.IsZero() {
			return PeriodWindow{}, ErrMissingAnchor
		}
		anchorDay := midnight(anchorUTC.In(loc))
		back := (int(anchorDay.Weekday()) + 6) % 7
		anchorMonday := anchorDay.AddDate(0, 0, -back)

		blocks := floorDiv(daysBetween(anchorMonday, midnight(local)), 14)
		startLocal = anchorMonday.AddDate(0, 0, 14*blocks)
		endLocal = startLocal.AddDate(0, 0, 14)

	default:
		return PeriodWindow{}, fmt.Errorf("unknown period type %q", periodType)
	}

	return PeriodWindow{
		StartUTC:   startLocal.UTC(),
		EndUTC:     endLocal.UTC(),
		StartLocal: startLocal,
		EndLocal:   endLocal,
		Type:       periodType,
	}, nil
}

// midnight truncates t to the start of its calendar day, keeping location.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b (both local midnights).
// Rounding absorbs the 23h/25h days that DST transitions produce.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// floorDiv is integer division rounding toward negative infinity, so a now
// before the anchor still lands in the correct earlier block.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

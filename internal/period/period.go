// Package period turns caller-supplied period specifiers into concrete
// time windows anchored to the service clock.
package period

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for malformed period input. Callers should
// treat it as a client error.
var ErrInvalidPeriod = errors.New("invalid period")

// Kind selects how a window is derived.
type Kind string

const (
	CurrentMonth Kind = "current_month"
	PastWeek     Kind = "past_week"
	Past30Days   Kind = "past_30_days"
	Custom       Kind = "custom"
)

// ParseKind parses a period name. An empty string selects CurrentMonth.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return CurrentMonth, nil
	case CurrentMonth, PastWeek, Past30Days, Custom:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, s)
	}
}

// Spec is a period specifier. Start and End are only read for Custom.
type Spec struct {
	Kind  Kind
	Start *time.Time
	End   *time.Time
}

// Window is a resolved, inclusive [Start, End] interval.
type Window struct {
	Start time.Time
	End   time.Time
	// Label is for display only.
	Label string
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Resolve evaluates spec against now. Day and month boundaries are taken in
// now's location.
func Resolve(spec Spec, now time.Time) (Window, error) {
	kind := spec.Kind
	if kind == "" {
		kind = CurrentMonth
	}

	switch kind {
	case CurrentMonth:
		return Window{
			Start: StartOfMonth(now),
			End:   now,
			Label: now.Format("January 2006"),
		}, nil
	case PastWeek:
		return Window{
			Start: StartOfDay(now.AddDate(0, 0, -7)),
			End:   now,
			Label: "Last 7 days",
		}, nil
	case Past30Days:
		return Window{
			Start: StartOfDay(now.AddDate(0, 0, -30)),
			End:   now,
			Label: "Last 30 days",
		}, nil
	case Custom:
		if spec.Start == nil || spec.End == nil {
			return Window{}, fmt.Errorf("%w: custom period requires start and end dates", ErrInvalidPeriod)
		}
		if spec.Start.After(*spec.End) {
			return Window{}, fmt.Errorf("%w: start date %s is after end date %s",
				ErrInvalidPeriod, spec.Start.Format(time.RFC3339), spec.End.Format(time.RFC3339))
		}
		start := StartOfDay(spec.Start.In(now.Location()))
		end := EndOfDay(spec.End.In(now.Location()))
		return Window{
			Start: start,
			End:   end,
			Label: fmt.Sprintf("%s - %s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006")),
		}, nil
	default:
		return Window{}, fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, spec.Kind)
	}
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// StartOfMonth returns the first instant of t's calendar month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns 23:59:59.999 of the last day of t's calendar month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Millisecond)
}

// MonthWindow returns the full calendar month offset months away from now's
// month (negative for the past).
func MonthWindow(now time.Time, offset int) Window {
	start := StartOfMonth(now).AddDate(0, offset, 0)
	return Window{
		Start: start,
		End:   EndOfMonth(start),
		Label: start.Format("Jan 2006"),
	}
}

package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/source"
)

// DateLayout is the accepted format for range dates.
const DateLayout = "2006-01-02"

// ErrInvalidWindow is returned for malformed dates or an inverted range.
var ErrInvalidWindow = errors.New("invalid window")

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Rolling returns the window of length d ending at now.
func Rolling(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// Filter keeps the items whose timestamp lies inside w, preserving order.
// An empty result is returned as a nil slice.
func Filter(items []source.Item, w Window) []source.Item {
	var kept []source.Item
	for _, it := range items {
		if w.Contains(it.Timestamp) {
			kept = append(kept, it)
		}
	}
	return kept
}

// ParseRange builds a custom-range window from YYYY-MM-DD dates in loc. The start
// is the beginning of its day; the end is the last millisecond of its day, or now
// when end is empty.
func ParseRange(start, end string, now time.Time, loc *time.Location) (Window, error) {
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start date %q, use YYYY-MM-DD", ErrInvalidWindow, start)
	}
	if s.After(now) {
		return Window{}, fmt.Errorf("%w: start date %s is in the future", ErrInvalidWindow, start)
	}

	e := now
	if end != "" {
		d, err := time.ParseInLocation(DateLayout, end, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end date %q, use YYYY-MM-DD", ErrInvalidWindow, end)
		}
		e = d.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	if s.After(e) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, start, e.Format(DateLayout))
	}
	return Window{Start: s, End: e}, nil
}

// Describe renders the window for notices and panels, e.g. "Mon Mar 02 2026".
func (w Window) Describe() (string, string) {
	const layout = "Mon Jan 02 2006"
	return w.Start.Format(layout), w.End.Format(layout)
}

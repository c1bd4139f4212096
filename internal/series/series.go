// Package series builds the date-ordered count series the exporters render.
package series

import (
	"sort"
	"time"
)

// DateLayout is the calendar date format used in every export.
const DateLayout = "2006-01-02"

// Point is one (date, count) sample. Label names the set member that
// produced the point, when there is one.
type Point struct {
	Date  time.Time
	Value int
	Label string
}

// Series is a sequence of points ordered by date ascending.
type Series []Point

// Values returns the counts as float64s, the form chart libraries take.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = float64(p.Value)
	}
	return out
}

// Sum adds up every value.
func (s Series) Sum() int {
	total := 0
	for _, p := range s {
		total += p.Value
	}
	return total
}

// NonDecreasing reports whether every value is >= its predecessor.
func (s Series) NonDecreasing() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Value < s[i-1].Value {
			return false
		}
	}
	return true
}

// Span is the lifetime of a tracked item: created, and closed unless still open.
type Span struct {
	Created time.Time
	Closed  *time.Time
}

// MonthStart truncates t to the first instant of its UTC calendar month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func sortedByCreation(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.Before(sorted[j].Created)
	})
	return sorted
}

// monthRange returns the first creation month and the later of the last
// creation month and now's month. ok is false for no spans.
func monthRange(spans []Span, now time.Time) (first, last time.Time, ok bool) {
	if len(spans) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first = MonthStart(spans[0].Created)
	last = MonthStart(spans[0].Created)
	for _, s := range spans[1:] {
		m := MonthStart(s.Created)
		if m.Before(first) {
			first = m
		}
		if m.After(last) {
			last = m
		}
	}
	if nm := MonthStart(now); nm.After(last) {
		last = nm
	}
	return first, last, true
}

// Cumulative emits one point per month in which the running creation count
// changes, dated the first of that month, valued at the month-end total.
func Cumulative(spans []Span) Series {
	var out Series
	running := 0
	for _, s := range sortedByCreation(spans) {
		running++
		month := MonthStart(s.Created)
		if n := len(out); n > 0 && out[n-1].Date.Equal(month) {
			out[n-1].Value = running
			continue
		}
		out = append(out, Point{Date: month, Value: running})
	}
	return out
}

// OpenOverTime samples, for every month from the first creation to now, how
// many items were open at the end of the month (at now for the current month).
func OpenOverTime(spans []Span, now time.Time) Series {
	first, last, ok := monthRange(spans, now)
	if !ok {
		return nil
	}
	now = now.UTC()

	var out Series
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		instant := m.AddDate(0, 1, 0).Add(-time.Nanosecond)
		if instant.After(now) && !now.Before(m) {
			instant = now
		}
		out = append(out, Point{Date: instant, Value: OpenAt(spans, instant)})
	}
	return out
}

// OpenAt counts items created at or before t and not yet closed at t.
func OpenAt(spans []Span, t time.Time) int {
	open := 0
	for _, s := range spans {
		if s.Created.After(t) {
			continue
		}
		if s.Closed == nil || s.Closed.After(t) {
			open++
		}
	}
	return open
}

// MonthlyNew counts creations per calendar month, emitting every month from
// the first creation to now, zero months included.
func MonthlyNew(spans []Span, now time.Time) Series {
	first, last, ok := monthRange(spans, now)
	if !ok {
		return nil
	}

	buckets := make(map[time.Time]int)
	for _, s := range spans {
		buckets[MonthStart(s.Created)]++
	}

	var out Series
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		out = append(out, Point{Date: m, Value: buckets[m]})
	}
	return out
}

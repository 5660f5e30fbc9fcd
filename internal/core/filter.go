package core

import (
	"strings"
	"time"
)

// RangeKind selects how the date window of a filter is resolved.
type RangeKind string

const (
	RangeAll          RangeKind = "all"
	RangeCurrentMonth RangeKind = "current_month"
	RangeLastMonth    RangeKind = "last_month"
	RangeLast3Months  RangeKind = "3m"
	RangeLast6Months  RangeKind = "6m"
	RangeLast12Months RangeKind = "12m"
	RangeCustom       RangeKind = "custom"
)

// TimeRange is the date dimension of a filter. Custom ranges carry both
// bounds; a custom range missing either bound degrades to all.
type TimeRange struct {
	Kind  RangeKind
	Start Date // custom only
	End   Date // custom only, inclusive
}

// Filter selects transactions by category, tag and date. Dimensions are
// combined with AND; within a dimension an empty slice means "all" and a
// non-empty slice matches any of its entries (OR).
type Filter struct {
	Categories []string
	Tags       []string
	Range      TimeRange
}

// ParseTimeRange maps query-string input to a TimeRange. Unknown or
// partially-specified input degrades to RangeAll rather than erroring.
func ParseTimeRange(kind, start, end string) TimeRange {
	switch RangeKind(strings.TrimSpace(kind)) {
	case RangeCurrentMonth, RangeLastMonth, RangeLast3Months, RangeLast6Months, RangeLast12Months:
		return TimeRange{Kind: RangeKind(strings.TrimSpace(kind))}
	case RangeCustom:
		s, errS := ParseDate(start)
		e, errE := ParseDate(end)
		if errS != nil || errE != nil || e.Before(s.Time) {
			return TimeRange{Kind: RangeAll}
		}
		return TimeRange{Kind: RangeCustom, Start: s, End: e}
	default:
		return TimeRange{Kind: RangeAll}
	}
}

// Window resolves the range to a concrete [from, to) interval against the
// given clock. ok is false for RangeAll, meaning no date constraint.
func (r TimeRange) Window(now time.Time) (from, to time.Time, ok bool) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch r.Kind {
	case RangeCurrentMonth:
		return monthStart, monthStart.AddDate(0, 1, 0), true
	case RangeLastMonth:
		return monthStart.AddDate(0, -1, 0), monthStart, true
	case RangeLast3Months:
		return monthStart.AddDate(0, -2, 0), monthStart.AddDate(0, 1, 0), true
	case RangeLast6Months:
		return monthStart.AddDate(0, -5, 0), monthStart.AddDate(0, 1, 0), true
	case RangeLast12Months:
		return monthStart.AddDate(0, -11, 0), monthStart.AddDate(0, 1, 0), true
	case RangeCustom:
		if r.Start.IsZero() || r.End.IsZero() {
			return time.Time{}, time.Time{}, false
		}
		return r.Start.Time, r.End.AddDate(0, 0, 1), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Matches applies the filter in memory. Storage translates the same
// semantics to SQL; this form backs the in-memory store and tests.
func (f Filter) Matches(t Transaction, now time.Time) bool {
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if t.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 {
		found := false
		for _, tag := range f.Tags {
			if t.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if from, to, ok := f.Range.Window(now); ok {
		if t.Date.Before(from) || !t.Date.Before(to) {
			return false
		}
	}
	return true
}

// NormalizeLabels cleans a comma-separated selection list from the query
// string. Invalid names are dropped silently: a malformed filter degrades
// to a narrower (or empty) selection rather than an error.
func NormalizeLabels(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		n := NormalizeLabel(v)
		if n == "" || ValidateLabelName(n) != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

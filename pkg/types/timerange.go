package types

import "time"

// TimeRange is one of the fixed analysis windows.
type TimeRange string

// Recognised time ranges.
const (
	Range1h  TimeRange = "1h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
	Range90d TimeRange = "90d"
)

// DefaultTimeRange is used whenever a caller passes an unrecognised range.
const DefaultTimeRange = Range24h

var rangeDurations = map[TimeRange]time.Duration{
	Range1h:  time.Hour,
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
	Range90d: 90 * 24 * time.Hour,
}

// ResolveTimeRange maps s onto a recognised TimeRange. Empty or unknown values
// fall back to DefaultTimeRange; ok reports whether s was recognised.
func ResolveTimeRange(s string) (tr TimeRange, ok bool) {
	tr = TimeRange(s)
	if _, known := rangeDurations[tr]; known {
		return tr, true
	}
	return DefaultTimeRange, false
}

// Duration returns the window length. Unknown ranges report the default window.
func (tr TimeRange) Duration() time.Duration {
	if d, ok := rangeDurations[tr]; ok {
		return d
	}
	return rangeDurations[DefaultTimeRange]
}

// Since returns the inclusive lower bound of the window ending at now.
func (tr TimeRange) Since(now time.Time) time.Time {
	return now.Add(-tr.Duration())
}

// Package timeutil provides epoch-second helpers shared by the retriever,
// scheduler, and memory tools. All persisted timestamps are UTC epoch
// seconds; the configured IANA timezone is applied only when rendering
// for humans or the LLM.
package timeutil

import "time"

// TimestampFormat is the human-readable rendering used in prompts and
// tool output.
const TimestampFormat = "2006-01-02 15:04:05"

// Now returns the current UTC epoch seconds.
func Now() int64 {
	return time.Now().Unix()
}

// Format renders an epoch timestamp in the given timezone.
func Format(ts int64, tz *time.Location) string {
	if ts == 0 {
		return "N/A"
	}
	if tz == nil {
		tz = time.UTC
	}
	return time.Unix(ts, 0).In(tz).Format(TimestampFormat)
}

// FormatRange renders a first..last timestamp pair. When both render to
// the same string only one is emitted.
func FormatRange(first, last int64, tz *time.Location) string {
	start := Format(first, tz)
	end := Format(last, tz)
	if start == end {
		return start
	}
	return start + " ~ " + end
}

// FormatWithZone renders a timestamp with the zone abbreviation appended,
// used for the "current time" line in prompts.
func FormatWithZone(ts int64, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return time.Unix(ts, 0).In(tz).Format("2006-01-02 15:04:05 MST")
}

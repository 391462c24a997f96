package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadArgument indicates an unparsable trigger expression or an
// invalid task operation.
var ErrBadArgument = errors.New("bad argument")

// relativeRe matches "in N unit" expressions.
var relativeRe = regexp.MustCompile(`^in\s+(\d+)\s*(s|sec|second|seconds|m|min|minute|minutes|h|hour|hours|d|day|days|w|week|weeks)$`)

// isoLayouts are accepted datetime forms, tried in order. Naive times
// are interpreted in the configured timezone.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseOnceTrigger parses a one-shot trigger expression into epoch
// seconds. Accepted: epoch seconds, ISO-8601 datetimes, the relative
// grammar ("in N seconds|minutes|hours|days|weeks", "tomorrow",
// "next week"), and compact durations ("30m", "2h"). Unparsable input
// fails with ErrBadArgument.
func ParseOnceTrigger(expr string, now int64, tz *time.Location) (int64, error) {
	if tz == nil {
		tz = time.UTC
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("%w: time expression is required", ErrBadArgument)
	}

	// Epoch seconds.
	if ts, err := strconv.ParseInt(expr, 10, 64); err == nil {
		if ts < 0 || ts > now+366*86400 {
			return 0, fmt.Errorf("%w: timestamp %d out of range", ErrBadArgument, ts)
		}
		return ts, nil
	}

	// ISO-8601 datetime.
	for _, layout := range isoLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, expr); err == nil {
				return t.Unix(), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, expr, tz); err == nil {
			return t.Unix(), nil
		}
	}

	lower := strings.ToLower(expr)

	// Relative grammar.
	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.ParseInt(m[1], 10, 64)
		return now + amount*unitSeconds(m[2]), nil
	}
	switch lower {
	case "tomorrow":
		return now + 86400, nil
	case "next week":
		return now + 7*86400, nil
	}

	// Compact duration ("30m", "2h").
	if secs, err := ParseInterval(lower); err == nil {
		return now + secs, nil
	}

	return 0, fmt.Errorf("%w: cannot parse time expression %q", ErrBadArgument, expr)
}

// ParseInterval parses a compact interval ("30s", "5m", "1h", "1d",
// "1w") or a positive integer seconds value.
func ParseInterval(expr string) (int64, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return 0, fmt.Errorf("%w: interval is required", ErrBadArgument)
	}

	numPart := expr
	mult := int64(1)
	if last := expr[len(expr)-1]; last < '0' || last > '9' {
		numPart = expr[:len(expr)-1]
		mult = unitSeconds(string(last))
		if mult == 0 {
			return 0, fmt.Errorf("%w: invalid interval %q (use 30s, 5m, 1h, 1d, 1w, or seconds)", ErrBadArgument, expr)
		}
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid interval %q (use 30s, 5m, 1h, 1d, 1w, or seconds)", ErrBadArgument, expr)
	}
	return n * mult, nil
}

// FormatInterval renders seconds in the compact grammar using the
// largest exact unit.
func FormatInterval(seconds int64) string {
	switch {
	case seconds%604800 == 0:
		return fmt.Sprintf("%dw", seconds/604800)
	case seconds%86400 == 0:
		return fmt.Sprintf("%dd", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func unitSeconds(unit string) int64 {
	switch unit {
	case "s", "sec", "second", "seconds":
		return 1
	case "m", "min", "minute", "minutes":
		return 60
	case "h", "hour", "hours":
		return 3600
	case "d", "day", "days":
		return 86400
	case "w", "week", "weeks":
		return 604800
	default:
		return 0
	}
}

package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// knownResolutions short-circuits the common ENTSO-E resolution literals
// without going through the general ISO-8601 duration parser.
var knownResolutions = map[string]time.Duration{
	"PT15M": 15 * time.Minute,
	"PT30M": 30 * time.Minute,
	"PT60M": time.Hour,
	"PT1H":  time.Hour,
	"P1D":   24 * time.Hour,
	"P7D":   7 * 24 * time.Hour,
	"P1Y":   365 * 24 * time.Hour,
}

// isSubHourly reports whether the resolution literal must be aggregated
// into hourly means before being persisted.
func isSubHourly(resolution string) bool {
	switch resolution {
	case "PT15M", "PT30M":
		return true
	default:
		return false
	}
}

// parseResolution converts an ENTSO-E resolution literal into a duration.
// Known literals short-circuit; anything else falls through a restricted
// ISO-8601 duration parser (PnYnMnDTnHnMnS, all components optional). A
// zero duration is rejected.
func parseResolution(s string) (time.Duration, error) {
	if d, ok := knownResolutions[s]; ok {
		return d, nil
	}

	d, err := parseISO8601Duration(s)
	if err != nil {
		return 0, &InvalidResolutionError{Resolution: s}
	}
	if d <= 0 {
		return 0, &InvalidResolutionError{Resolution: s}
	}
	return d, nil
}

// parseISO8601Duration parses the subset of ISO-8601 durations ENTSO-E is
// known to emit: a leading "P", an optional "nY"/"nM"/"nD" date part, and
// an optional "T" time part with "nH"/"nM"/"nS". Years are approximated as
// 365 days and months as 30 days, which is sufficient for resolution
// literals (durations between successive points), never for calendar math.
func parseISO8601Duration(s string) (time.Duration, error) {
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("not an ISO-8601 duration: %q", s)
	}

	datePart, timePart, hasTime := strings.Cut(s[1:], "T")

	var total time.Duration
	var err error

	total, err = accumulateDuration(total, datePart, map[byte]time.Duration{
		'Y': 365 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
		'D': 24 * time.Hour,
	})
	if err != nil {
		return 0, err
	}

	if hasTime {
		total, err = accumulateDuration(total, timePart, map[byte]time.Duration{
			'H': time.Hour,
			'M': time.Minute,
			'S': time.Second,
		})
		if err != nil {
			return 0, err
		}
	}

	return total, nil
}

func accumulateDuration(total time.Duration, part string, units map[byte]time.Duration) (time.Duration, error) {
	numStart := 0
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c >= '0' && c <= '9' {
			continue
		}
		unit, ok := units[c]
		if !ok {
			return 0, fmt.Errorf("unsupported duration unit %q in %q", c, part)
		}
		n, err := strconv.Atoi(part[numStart:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration quantity in %q: %w", part, err)
		}
		total += time.Duration(n) * unit
		numStart = i + 1
	}
	if numStart != len(part) {
		return 0, fmt.Errorf("trailing characters in duration part %q", part)
	}
	return total, nil
}

// expectedPointCount returns floor((end-start)/resolution), clamped to 0.
func expectedPointCount(start, end time.Time, resolution time.Duration) int {
	if resolution <= 0 {
		return 0
	}
	span := end.Sub(start)
	if span <= 0 {
		return 0
	}
	return int(span / resolution)
}

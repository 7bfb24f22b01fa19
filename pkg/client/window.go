package client

import (
	"fmt"
	"time"
)

// entsoeTimeLayout is the no-seconds, no-separators layout ENTSO-E expects
// for periodStart/periodEnd query parameters.
const entsoeTimeLayout = "200601021504"

// localDayWindowUTC computes the UTC [start, end) window covering local
// date d (year/month/day only, any time-of-day is ignored) in the given
// IANA zone. Ambiguous or non-existent local midnights are not expected
// in any IANA zone and are treated as a fatal invariant violation, per
// spec.md §4.2 and §8.
func localDayWindowUTC(d time.Time, loc *time.Location) (start, end time.Time, err error) {
	y, m, day := d.Date()
	localStart := time.Date(y, m, day, 0, 0, 0, 0, loc)
	localEnd := localStart.AddDate(0, 0, 1)

	if err := assertUnambiguousMidnight(localStart, loc); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := assertUnambiguousMidnight(localEnd, loc); err != nil {
		return time.Time{}, time.Time{}, err
	}

	return localStart.UTC(), localEnd.UTC(), nil
}

// assertUnambiguousMidnight panics-free sanity check: Go's time.Date
// always resolves a local wall time to *some* UTC instant (it never
// errors). A non-existent midnight is detected because the resolved time
// no longer reads 00:00 local; an ambiguous one because the instant an
// hour earlier or later also reads 00:00 on the same date. This is
// expected to never trigger for midnight in any IANA zone; if it does,
// it's surfaced as an error rather than silently ingesting a skewed window.
func assertUnambiguousMidnight(local time.Time, loc *time.Location) error {
	local = local.In(loc)
	y, m, d := local.Date()
	ambiguous := false
	for _, probe := range []time.Time{local.Add(-time.Hour), local.Add(time.Hour)} {
		py, pm, pd := probe.Date()
		if py == y && pm == m && pd == d && probe.Hour() == 0 && probe.Minute() == 0 {
			ambiguous = true
		}
	}
	if ambiguous || local.Hour() != 0 || local.Minute() != 0 {
		return fmt.Errorf("ambiguous or non-existent local midnight in %s at %s", loc, local.Format(time.RFC3339))
	}
	return nil
}

// formatPeriodParam renders t (expected to already be UTC) in ENTSO-E's
// periodStart/periodEnd query parameter format.
func formatPeriodParam(t time.Time) string {
	return t.UTC().Format(entsoeTimeLayout)
}

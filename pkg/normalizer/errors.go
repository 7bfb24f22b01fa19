package normalizer

import "fmt"

// ErrNoData names the "nothing to report" outcome (reason code 999).
// Normalize does not return it: a 999 acknowledgement yields an empty
// result with a nil error.
var ErrNoData = fmt.Errorf("no data")

// ErrMissingFirstPeriod is returned when position 1 of a Period is absent,
// since there is nothing to forward-fill from.
var ErrMissingFirstPeriod = fmt.Errorf("missing first period position")

// InvalidResponseError wraps an acknowledgement reason (other than 999) or
// any other document shape that isn't a usable publication.
type InvalidResponseError struct {
	Message string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response: %s", e.Message)
}

// XMLParseError is returned when the body is neither a valid
// Publication_MarketDocument nor a valid Acknowledgement_MarketDocument.
type XMLParseError struct {
	BodyPrefix string
}

func (e *XMLParseError) Error() string {
	return fmt.Sprintf("failed to parse market document, body prefix: %q", e.BodyPrefix)
}

// InvalidResolutionError is returned for a resolution string this service
// can't interpret, or one whose duration is zero.
type InvalidResolutionError struct {
	Resolution string
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("invalid resolution: %q", e.Resolution)
}

// TimestampParseError is returned when a period's start/end timestamp
// can't be parsed as RFC-3339 or the compressed no-seconds form.
type TimestampParseError struct {
	Value string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("invalid timestamp: %q", e.Value)
}

// PeriodCountMismatchError records that a period's point positions exceed
// the expected count derived from its declared interval and resolution.
type PeriodCountMismatchError struct {
	Expected int
	Got      int
}

func (e *PeriodCountMismatchError) Error() string {
	return fmt.Sprintf("period point count mismatch: expected %d, got position up to %d", e.Expected, e.Got)
}

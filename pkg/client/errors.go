package client

import (
	"errors"
	"fmt"

	"github.com/entsoeprices/dayahead/pkg/normalizer"
)

// RateLimitedError is returned for an HTTP 429 response. It's transient:
// the caller should retry after backing off.
type RateLimitedError struct{}

func (e *RateLimitedError) Error() string { return "rate limited by entsoe" }

// TemporaryUnavailableError is returned for a 5xx response. It's
// transient: the caller should retry after backing off.
type TemporaryUnavailableError struct {
	Body string
}

func (e *TemporaryUnavailableError) Error() string {
	return fmt.Sprintf("entsoe temporarily unavailable: %s", e.Body)
}

// InvalidResponseError is returned for any status other than 200/429/5xx.
// It's permanent: retrying won't help.
type InvalidResponseError struct {
	StatusCode int
	Body       string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("entsoe invalid response (status %d): %s", e.StatusCode, e.Body)
}

// isTransient reports whether err is one of the retryable ingestion error
// kinds (RateLimitedError, TemporaryUnavailableError), or a plain
// transport-level error (propagated from the http.Client, classified as
// transient per spec).
func isTransient(err error) bool {
	switch err.(type) {
	case *RateLimitedError, *TemporaryUnavailableError:
		return true
	case *InvalidResponseError:
		return false
	default:
		// normalizer errors (parse/resolution/timestamp/missing-period/
		// count-mismatch) and the acknowledgement invalid-response error
		// are permanent; anything else reaching here is a transport-level
		// error (DNS, connection refused, timeout) and is transient.
		return !isPermanentNormalizeError(err)
	}
}

// isPermanentNormalizeError reports whether err is one of the normalizer
// package's permanent error kinds.
func isPermanentNormalizeError(err error) bool {
	if errors.Is(err, normalizer.ErrMissingFirstPeriod) {
		return true
	}
	var invalidResp *normalizer.InvalidResponseError
	var xmlParse *normalizer.XMLParseError
	var invalidRes *normalizer.InvalidResolutionError
	var tsParse *normalizer.TimestampParseError
	var countMismatch *normalizer.PeriodCountMismatchError
	switch {
	case errors.As(err, &invalidResp),
		errors.As(err, &xmlParse),
		errors.As(err, &invalidRes),
		errors.As(err, &tsParse),
		errors.As(err, &countMismatch):
		return true
	default:
		return false
	}
}

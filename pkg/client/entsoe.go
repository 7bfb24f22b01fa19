// Package client implements the rate-limited ENTSO-E Transparency Platform
// API client: token-bucket throttling, URL assembly, HTTP response
// classification, and capped exponential backoff with jitter.
package client

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/entsoeprices/dayahead/pkg/common"
	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/normalizer"
	"github.com/entsoeprices/dayahead/pkg/telemetry"
	"github.com/entsoeprices/dayahead/pkg/types"
)

const (
	documentTypeDayAhead = "A44"
	processTypeDayAhead  = "A01"
	maxAttempts          = 4
	backoffBaseMS        = 1000
	backoffCapMS         = 60000
	jitterFraction       = 0.2
)

// Client fetches and normalizes ENTSO-E day-ahead price documents for a
// single bidding zone at a time, sharing one token bucket across all
// concurrent callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	bucket     *tokenBucket
	telemetry  telemetry.Sink
	rand       *rand.Rand
	randMu     sync.Mutex
}

// Config carries the client's construction parameters.
type Config struct {
	BaseURL         string
	SecurityToken   string
	RateLimitPerMin int
	Timeout         time.Duration
}

// New constructs a Client. A nil telemetry sink is replaced with a Noop.
func New(cfg Config, sink telemetry.Sink) *Client {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Client{
		httpClient: common.HTTPClient(cfg.Timeout),
		baseURL:    cfg.BaseURL,
		token:      cfg.SecurityToken,
		bucket:     newTokenBucket(cfg.RateLimitPerMin),
		telemetry:  sink,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchDayAheadPrices fetches and normalizes day-ahead prices for zone over
// the local calendar date d, in zone's IANA timezone. It makes at most
// maxAttempts attempts, retrying transient failures with capped
// exponential backoff.
func (c *Client) FetchDayAheadPrices(ctx context.Context, zone types.BiddingZone, d time.Time) ([]types.Price, error) {
	loc, err := time.LoadLocation(zone.Timezone)
	if err != nil {
		return nil, err
	}
	start, end, err := localDayWindowUTC(d, loc)
	if err != nil {
		return nil, err
	}
	return c.FetchRangePrices(ctx, zone, start, end)
}

// FetchRangePrices fetches and normalizes day-ahead prices for zone over
// the explicit UTC window [start, end).
func (c *Client) FetchRangePrices(ctx context.Context, zone types.BiddingZone, start, end time.Time) ([]types.Price, error) {
	u := c.buildURL(zone.EICCode, start, end)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.telemetry.IncCounter("entsoe_client_attempts_total", "zone", zone.ZoneCode)

		prices, err := c.doFetch(ctx, u, zone.ZoneCode)
		if err == nil {
			c.telemetry.IncCounter("entsoe_client_success_total", "zone", zone.ZoneCode)
			return prices, nil
		}
		lastErr = err

		if !isTransient(err) {
			c.telemetry.IncCounter("entsoe_client_permanent_errors_total", "zone", zone.ZoneCode)
			return nil, err
		}
		c.telemetry.IncCounter("entsoe_client_transient_errors_total", "zone", zone.ZoneCode)

		if attempt == maxAttempts-1 {
			break
		}

		wait := c.backoff(attempt)
		log.Ctx(ctx).WarnContext(ctx, "retrying entsoe fetch",
			"zone", zone.ZoneCode, "attempt", attempt+1, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

// backoff returns min(1000*2^attempt, 60000) ms plus jitter in
// [0, 0.2*capped) ms.
func (c *Client) backoff(attempt int) time.Duration {
	capped := backoffBaseMS << attempt
	if capped > backoffCapMS {
		capped = backoffCapMS
	}
	c.randMu.Lock()
	jitter := c.rand.Float64() * jitterFraction * float64(capped)
	c.randMu.Unlock()
	return time.Duration(capped)*time.Millisecond + time.Duration(jitter)*time.Millisecond
}

// doFetch waits for a rate-limit token, issues one HTTP request, and
// classifies/decodes the response.
func (c *Client) doFetch(ctx context.Context, u string, zoneCode string) ([]types.Price, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.telemetry.ObserveHistogram("entsoe_client_duration_seconds", time.Since(started).Seconds(), "zone", zoneCode)

	switch {
	case resp.StatusCode == http.StatusOK:
		prices, err := normalizer.Normalize(body, zoneCode, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		return prices, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{}
	case resp.StatusCode >= 500:
		return nil, &TemporaryUnavailableError{Body: string(body)}
	default:
		return nil, &InvalidResponseError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// acquire blocks (via plain sleeps, never busy-spinning) until a token is
// available, incrementing a wait counter every time it has to sleep.
func (c *Client) acquire(ctx context.Context) error {
	for {
		ok, wait := c.bucket.tryAcquire()
		if ok {
			return nil
		}
		c.telemetry.IncCounter("entsoe_client_rate_limit_waits_total")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) buildURL(eicCode string, start, end time.Time) string {
	q := url.Values{}
	q.Set("securityToken", c.token)
	q.Set("documentType", documentTypeDayAhead)
	q.Set("processType", processTypeDayAhead)
	q.Set("in_Domain", eicCode)
	q.Set("out_Domain", eicCode)
	q.Set("periodStart", formatPeriodParam(start))
	q.Set("periodEnd", formatPeriodParam(end))

	u, _ := url.Parse(c.baseURL)
	u.RawQuery = q.Encode()
	return u.String()
}

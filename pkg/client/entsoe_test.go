package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeDayBody() string {
	var points string
	for i := 1; i <= 24; i++ {
		points += fmt.Sprintf(`<Point><position>%d</position><price.amount>%d</price.amount></Point>`, i, 50+i)
	}
	return `<Publication_MarketDocument><TimeSeries><Period>` +
		`<timeInterval><start>2025-12-30T23:00:00Z</start><end>2025-12-31T23:00:00Z</end></timeInterval>` +
		`<resolution>PT60M</resolution>` + points + `</Period></TimeSeries></Publication_MarketDocument>`
}

func TestFetchRangePrices_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(completeDayBody()))
		}
	}))
	defer server.Close()

	c := New(Config{
		BaseURL:         server.URL,
		SecurityToken:   "test-token",
		RateLimitPerMin: 6000, // avoid rate-limit waits skewing the test
		Timeout:         5 * time.Second,
	}, nil)
	zone := types.BiddingZone{ZoneCode: "DE-LU", EICCode: "10Y1001A1001A82H", Timezone: "Europe/Berlin"}
	start := time.Date(2025, 12, 30, 23, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	done := make(chan struct{})
	var prices []types.Price
	var err error
	go func() {
		prices, err = c.FetchRangePrices(t.Context(), zone, start, end)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("fetch did not complete in time")
	}

	require.NoError(t, err)
	assert.Len(t, prices, 24)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchRangePrices_PermanentErrorShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	c := New(Config{
		BaseURL:         server.URL,
		SecurityToken:   "test-token",
		RateLimitPerMin: 6000,
		Timeout:         5 * time.Second,
	}, nil)

	zone := types.BiddingZone{ZoneCode: "AT", EICCode: "10YAT-APG------L", Timezone: "Europe/Vienna"}
	start := time.Date(2025, 12, 30, 23, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	_, err := c.FetchRangePrices(t.Context(), zone, start, end)
	require.Error(t, err)
	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBuildURL(t *testing.T) {
	c := New(Config{BaseURL: "https://example.com/api", SecurityToken: "tok"}, nil)
	u := c.buildURL("10Y1001A1001A82H", time.Date(2025, 12, 30, 23, 0, 0, 0, time.UTC), time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Contains(t, u, "documentType=A44")
	assert.Contains(t, u, "processType=A01")
	assert.Contains(t, u, "periodStart=202512302300")
	assert.Contains(t, u, "periodEnd=202512312300")
	assert.Contains(t, u, "securityToken=tok")
}

// Package types holds the persistent domain model shared by the
// repository, normalizer, orchestrator, backfill, and server packages.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// FetchStatus is the terminal (or pending) state of a FetchLog row.
type FetchStatus string

const (
	FetchStatusPending     FetchStatus = "pending"
	FetchStatusSuccess     FetchStatus = "success"
	FetchStatusNoData      FetchStatus = "nodata"
	FetchStatusError       FetchStatus = "error"
	FetchStatusRateLimited FetchStatus = "ratelimited"
)

// ResolutionHourly is the canonical hourly resolution: normalization maps
// PT1H, and the hourly means of PT15M/PT30M points, to it. Coarser
// resolutions (P1D, P7D, P1Y) keep their own literal.
const ResolutionHourly = "PT60M"

// CurrencyEUR is the only currency this service persists.
const CurrencyEUR = "EUR"

// BiddingZone is a market area within which one day-ahead spot price
// applies, e.g. DE-LU, AT, NL.
type BiddingZone struct {
	ZoneCode    string    `db:"zone_code" json:"zoneCode"`
	ZoneName    string    `db:"zone_name" json:"zoneName"`
	CountryCode string    `db:"country_code" json:"countryCode"`
	CountryName string    `db:"country_name" json:"countryName"`
	EICCode     string    `db:"eic_code" json:"eicCode"`
	Timezone    string    `db:"timezone" json:"timezone"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Price is one hourly EUR/kWh observation for a bidding zone. The composite
// key is (Timestamp, BiddingZone).
type Price struct {
	Timestamp   time.Time       `db:"timestamp" json:"timestamp"`
	BiddingZone string          `db:"bidding_zone" json:"biddingZone"`
	PriceKWH    decimal.Decimal `db:"price_kwh" json:"priceKwh"`
	Currency    string          `db:"currency" json:"currency"`
	Resolution  string          `db:"resolution" json:"resolution"`
	FetchedAt   time.Time       `db:"fetched_at" json:"fetchedAt"`
}

// FetchLog audits a single fetch cycle, either a multi-zone batch
// (BiddingZone == nil) or a targeted single-zone refetch.
type FetchLog struct {
	ID                int64      `db:"id" json:"id"`
	FetchStartedAt    time.Time  `db:"fetch_started_at" json:"fetchStartedAt"`
	FetchCompletedAt  *time.Time `db:"fetch_completed_at" json:"fetchCompletedAt,omitempty"`
	BiddingZone       *string    `db:"bidding_zone" json:"biddingZone,omitempty"`
	PeriodStart       time.Time  `db:"period_start" json:"periodStart"`
	PeriodEnd         time.Time  `db:"period_end" json:"periodEnd"`
	Status            FetchStatus `db:"status" json:"status"`
	RecordsInserted   *int64     `db:"records_inserted" json:"recordsInserted,omitempty"`
	ErrorMessage      *string    `db:"error_message" json:"errorMessage,omitempty"`
	HTTPStatus        *int       `db:"http_status" json:"httpStatus,omitempty"`
	DurationMS        *int64     `db:"duration_ms" json:"durationMs,omitempty"`
}

// Gap describes a (date, zone) pair with fewer than the expected number of
// hourly rows.
type Gap struct {
	Date          time.Time `json:"date"`
	ZoneCode      string    `json:"zoneCode"`
	ExistingCount int       `json:"existingCount"`
	MissingHours  int       `json:"missingHours"`
}

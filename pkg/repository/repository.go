// Package repository is the PostgreSQL-backed persistence layer: bidding
// zone registry, idempotent price upserts, range queries, fetch-log audit
// trail, and gap detection for the backfill engine.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the interface the orchestrator, backfill engine, and HTTP
// adapter depend on. A single *Postgres satisfies it in production;
// package-level tests substitute a sqlmock-backed *Postgres.
type Repository interface {
	LoadZones(ctx context.Context) ([]types.BiddingZone, error)
	GetZoneByCode(ctx context.Context, code string) (types.BiddingZone, error)
	GetZoneByEIC(ctx context.Context, eicCode string) (types.BiddingZone, error)
	GetZonesByCountry(ctx context.Context, countryCode string) ([]types.BiddingZone, error)
	GetCountries(ctx context.Context) ([]string, error)

	UpsertPrices(ctx context.Context, prices []types.Price) (int64, error)
	GetPricesByZone(ctx context.Context, zoneCode string, start, end time.Time) ([]types.Price, error)
	GetPricesByCountry(ctx context.Context, countryCode string, start, end time.Time) ([]types.Price, error)
	GetLatestPrices(ctx context.Context, maxAgeHours *int) ([]types.Price, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	LogFetchStart(ctx context.Context, zoneCode *string, periodStart, periodEnd time.Time) (int64, error)
	LogFetchComplete(ctx context.Context, id int64, status types.FetchStatus, recordsInserted *int64, errMsg *string, httpStatus *int, duration time.Duration) error

	// HasTomorrowData reports whether zoneCode already has at least one
	// price row in [tomorrow 00:00, tomorrow+1d 00:00) UTC.
	HasTomorrowData(ctx context.Context, zoneCode string) (bool, error)

	// FindGaps reports (date, zone) pairs with fewer than 24 hourly rows
	// for each of zoneCodes over the inclusive UTC date range
	// [start, end]. A nil/empty zoneCodes checks every active zone.
	FindGaps(ctx context.Context, start, end time.Time, zoneCodes []string) ([]types.Gap, error)
	Ping(ctx context.Context) error
}

// Postgres implements Repository against a PostgreSQL database via sqlx.
type Postgres struct {
	db *sqlx.DB
}

// Config carries the pool tuning parameters, mirroring §5 of the
// ingestion design: bounded connections, bounded idle time, bounded
// connect timeout.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Open connects to PostgreSQL and applies the pool tuning from cfg.
func Open(cfg Config) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, &PoolError{Err: err}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Postgres{db: db}, nil
}

// New wraps an already-open *sqlx.DB, primarily for tests that hand in a
// sqlmock-backed connection.
func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies connectivity for readiness probes.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &PoolError{Err: err}
	}
	return nil
}

const zoneColumns = "zone_code, zone_name, country_code, country_name, eic_code, timezone, active, created_at, updated_at"

func (p *Postgres) LoadZones(ctx context.Context) ([]types.BiddingZone, error) {
	var zones []types.BiddingZone
	query := `SELECT ` + zoneColumns + ` FROM bidding_zones WHERE active ORDER BY zone_code`
	if err := p.db.SelectContext(ctx, &zones, query); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return zones, nil
}

func (p *Postgres) GetZoneByCode(ctx context.Context, code string) (types.BiddingZone, error) {
	var zone types.BiddingZone
	query := `SELECT ` + zoneColumns + ` FROM bidding_zones WHERE zone_code = $1`
	err := p.db.GetContext(ctx, &zone, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BiddingZone{}, &NotFound{Resource: "bidding_zone", Key: code}
	}
	if err != nil {
		return types.BiddingZone{}, &QueryError{Query: query, Err: err}
	}
	return zone, nil
}

func (p *Postgres) GetZoneByEIC(ctx context.Context, eicCode string) (types.BiddingZone, error) {
	var zone types.BiddingZone
	query := `SELECT ` + zoneColumns + ` FROM bidding_zones WHERE eic_code = $1`
	err := p.db.GetContext(ctx, &zone, query, eicCode)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BiddingZone{}, &NotFound{Resource: "bidding_zone", Key: eicCode}
	}
	if err != nil {
		return types.BiddingZone{}, &QueryError{Query: query, Err: err}
	}
	return zone, nil
}

func (p *Postgres) GetZonesByCountry(ctx context.Context, countryCode string) ([]types.BiddingZone, error) {
	var zones []types.BiddingZone
	query := `SELECT ` + zoneColumns + ` FROM bidding_zones WHERE active AND country_code = $1 ORDER BY zone_code`
	if err := p.db.SelectContext(ctx, &zones, query, countryCode); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return zones, nil
}

func (p *Postgres) GetCountries(ctx context.Context) ([]string, error) {
	var countries []string
	query := `SELECT DISTINCT country_code FROM bidding_zones WHERE active ORDER BY country_code`
	if err := p.db.SelectContext(ctx, &countries, query); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return countries, nil
}

// UpsertPrices idempotently inserts or updates prices keyed on
// (timestamp, bidding_zone), using a single statement over UNNEST arrays
// so a full day's worth of hourly rows round-trips in one query.
func (p *Postgres) UpsertPrices(ctx context.Context, prices []types.Price) (int64, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	// pq's array encoder only supports bool/float/int/string/[]byte
	// element kinds, so timestamps travel as RFC3339Nano text and are
	// cast back to timestamptz by the query itself.
	timestamps := make([]string, len(prices))
	zones := make([]string, len(prices))
	amounts := make([]string, len(prices))
	currencies := make([]string, len(prices))
	resolutions := make([]string, len(prices))
	fetchedAts := make([]string, len(prices))

	for i, price := range prices {
		timestamps[i] = price.Timestamp.UTC().Format(time.RFC3339Nano)
		zones[i] = price.BiddingZone
		amounts[i] = price.PriceKWH.String()
		currencies[i] = price.Currency
		resolutions[i] = price.Resolution
		fetchedAts[i] = price.FetchedAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO electricity_prices (timestamp, bidding_zone, price_kwh, currency, resolution, fetched_at)
		SELECT * FROM UNNEST($1::timestamptz[], $2::text[], $3::numeric[], $4::text[], $5::text[], $6::timestamptz[])
		ON CONFLICT (timestamp, bidding_zone) DO UPDATE SET
			price_kwh = EXCLUDED.price_kwh,
			currency = EXCLUDED.currency,
			resolution = EXCLUDED.resolution,
			fetched_at = EXCLUDED.fetched_at`

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &PoolError{Err: err}
	}

	result, err := tx.ExecContext(ctx, query,
		pq.Array(timestamps), pq.Array(zones), pq.Array(amounts),
		pq.Array(currencies), pq.Array(resolutions), pq.Array(fetchedAts))
	if err != nil {
		_ = tx.Rollback()
		return 0, &QueryError{Query: query, Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, &DatabaseError{Op: "UpsertPrices.RowsAffected", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &DatabaseError{Op: "UpsertPrices.Commit", Err: err}
	}
	return n, nil
}

const priceColumns = "timestamp, bidding_zone, price_kwh, currency, resolution, fetched_at"

func (p *Postgres) GetPricesByZone(ctx context.Context, zoneCode string, start, end time.Time) ([]types.Price, error) {
	var prices []types.Price
	query := `SELECT ` + priceColumns + ` FROM electricity_prices
		WHERE bidding_zone = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp`
	if err := p.db.SelectContext(ctx, &prices, query, zoneCode, start, end); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return prices, nil
}

func (p *Postgres) GetPricesByCountry(ctx context.Context, countryCode string, start, end time.Time) ([]types.Price, error) {
	var prices []types.Price
	query := `SELECT p.timestamp, p.bidding_zone, p.price_kwh, p.currency, p.resolution, p.fetched_at
		FROM electricity_prices p
		JOIN bidding_zones z ON z.zone_code = p.bidding_zone
		WHERE z.country_code = $1 AND p.timestamp >= $2 AND p.timestamp < $3
		ORDER BY p.timestamp, p.bidding_zone`
	if err := p.db.SelectContext(ctx, &prices, query, countryCode, start, end); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return prices, nil
}

// GetLatestPrices returns the most recent price per bidding zone,
// optionally restricted to rows no older than maxAgeHours.
func (p *Postgres) GetLatestPrices(ctx context.Context, maxAgeHours *int) ([]types.Price, error) {
	var prices []types.Price
	if maxAgeHours != nil {
		query := `SELECT DISTINCT ON (bidding_zone) ` + priceColumns + `
			FROM electricity_prices
			WHERE timestamp >= NOW() - make_interval(hours => $1)
			ORDER BY bidding_zone, timestamp DESC`
		if err := p.db.SelectContext(ctx, &prices, query, *maxAgeHours); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		return prices, nil
	}

	query := `SELECT DISTINCT ON (bidding_zone) ` + priceColumns + `
		FROM electricity_prices
		ORDER BY bidding_zone, timestamp DESC`
	if err := p.db.SelectContext(ctx, &prices, query); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return prices, nil
}

// DeleteOlderThan removes price rows with timestamp strictly before
// cutoff, returning the number of rows removed.
func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM electricity_prices WHERE timestamp < $1`
	result, err := p.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, &QueryError{Query: query, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &DatabaseError{Op: "DeleteOlderThan.RowsAffected", Err: err}
	}
	return n, nil
}

func (p *Postgres) LogFetchStart(ctx context.Context, zoneCode *string, periodStart, periodEnd time.Time) (int64, error) {
	query := `INSERT INTO fetch_log (fetch_started_at, bidding_zone, period_start, period_end, status)
		VALUES (now(), $1, $2, $3, $4) RETURNING id`
	var id int64
	if err := p.db.QueryRowxContext(ctx, query, zoneCode, periodStart, periodEnd, types.FetchStatusPending).Scan(&id); err != nil {
		return 0, &QueryError{Query: query, Err: err}
	}
	return id, nil
}

func (p *Postgres) LogFetchComplete(ctx context.Context, id int64, status types.FetchStatus, recordsInserted *int64, errMsg *string, httpStatus *int, duration time.Duration) error {
	durationMS := duration.Milliseconds()
	query := `UPDATE fetch_log SET fetch_completed_at = now(), status = $2, records_inserted = $3,
		error_message = $4, http_status = $5, duration_ms = $6 WHERE id = $1`
	if _, err := p.db.ExecContext(ctx, query, id, status, recordsInserted, errMsg, httpStatus, durationMS); err != nil {
		return &QueryError{Query: query, Err: err}
	}
	return nil
}

// HasTomorrowData reports whether zoneCode already has at least one price
// row in [tomorrow 00:00, tomorrow+1d 00:00) UTC.
func (p *Postgres) HasTomorrowData(ctx context.Context, zoneCode string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM electricity_prices
		WHERE bidding_zone = $1
		  AND timestamp >= date_trunc('day', now()) + interval '1 day'
		  AND timestamp < date_trunc('day', now()) + interval '2 days'`

	var count int64
	if err := p.db.GetContext(ctx, &count, query, zoneCode); err != nil {
		return false, &QueryError{Query: query, Err: err}
	}
	return count > 0, nil
}

// FindGaps returns (date, zone) pairs with fewer than 24 hourly rows, for
// every zone in zoneCodes (or every active zone when zoneCodes is empty),
// over the inclusive UTC date range [start, end].
func (p *Postgres) FindGaps(ctx context.Context, start, end time.Time, zoneCodes []string) ([]types.Gap, error) {
	query := `
		WITH date_range AS (
			SELECT generate_series($1::date, $2::date, interval '1 day')::date AS date
		),
		zones AS (
			SELECT zone_code FROM bidding_zones
			WHERE active AND (cardinality($3::text[]) = 0 OR zone_code = ANY($3::text[]))
		),
		date_zone_pairs AS (
			SELECT d.date, z.zone_code FROM date_range d CROSS JOIN zones z
		),
		price_counts AS (
			SELECT date(timestamp AT TIME ZONE 'UTC') AS price_date, bidding_zone, count(*) AS hour_count
			FROM electricity_prices
			WHERE timestamp >= $1::date AND timestamp < ($2::date + interval '1 day')
			GROUP BY 1, 2
		)
		SELECT dzp.date, dzp.zone_code, COALESCE(pc.hour_count, 0) AS existing_count
		FROM date_zone_pairs dzp
		LEFT JOIN price_counts pc ON dzp.date = pc.price_date AND dzp.zone_code = pc.bidding_zone
		WHERE COALESCE(pc.hour_count, 0) < 24
		ORDER BY dzp.date, dzp.zone_code`

	// pq encodes a nil slice as NULL, which cardinality() does not treat as
	// empty; send an empty array instead so nil also means "every zone".
	if zoneCodes == nil {
		zoneCodes = []string{}
	}
	rows, err := p.db.QueryxContext(ctx, query, start, end, pq.Array(zoneCodes))
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	var gaps []types.Gap
	for rows.Next() {
		var g types.Gap
		if err := rows.Scan(&g.Date, &g.ZoneCode, &g.ExistingCount); err != nil {
			return nil, &DatabaseError{Op: "FindGaps.Scan", Err: err}
		}
		g.MissingHours = 24 - g.ExistingCount
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "FindGaps.Rows", Err: err}
	}
	return gaps, nil
}

// Package orchestrator drives the day-to-day ingestion cycle: fetch every
// active bidding zone for a target date with bounded concurrency, persist
// the normalized prices in one batch per date, and log the outcome.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/entsoeprices/dayahead/pkg/client"
	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/repository"
	"github.com/entsoeprices/dayahead/pkg/telemetry"
	"github.com/entsoeprices/dayahead/pkg/types"
	"golang.org/x/sync/errgroup"
)

// maxInFlight bounds the number of zone fetches running at once.
const maxInFlight = 5

// ZoneFetcher is the subset of *client.Client the orchestrator depends on.
type ZoneFetcher interface {
	FetchDayAheadPrices(ctx context.Context, zone types.BiddingZone, d time.Time) ([]types.Price, error)
}

var _ ZoneFetcher = (*client.Client)(nil)

// Orchestrator coordinates fetching, normalizing, and persisting day-ahead
// prices across every active bidding zone.
type Orchestrator struct {
	repo      repository.Repository
	fetcher   ZoneFetcher
	telemetry telemetry.Sink
}

// New constructs an Orchestrator. A nil telemetry sink is replaced with a
// Noop.
func New(repo repository.Repository, fetcher ZoneFetcher, sink telemetry.Sink) *Orchestrator {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Orchestrator{repo: repo, fetcher: fetcher, telemetry: sink}
}

// zoneOutcome is one zone's fetch result, before the date-level batch
// upsert folds every successful zone's prices together.
type zoneOutcome struct {
	zoneCode string
	prices   []types.Price
	err      error
}

// FetchSummary aggregates the per-zone outcomes of one fetch cycle, which
// may span more than one date.
type FetchSummary struct {
	SuccessCount  int
	NoDataCount   int
	ErrorCount    int
	TotalInserted int64
	Errors        []string
}

// merge folds other into the running summary.
func (s *FetchSummary) merge(other *FetchSummary) {
	s.SuccessCount += other.SuccessCount
	s.NoDataCount += other.NoDataCount
	s.ErrorCount += other.ErrorCount
	s.TotalInserted += other.TotalInserted
	s.Errors = append(s.Errors, other.Errors...)
}

// FetchAllPrices is the primary ingestion operation: it fetches today and
// tomorrow for every active zone and brackets the whole two-date cycle
// with a single multi-zone fetch-log row (bidding_zone = NULL).
func (o *Orchestrator) FetchAllPrices(ctx context.Context) (*FetchSummary, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	tomorrow := today.AddDate(0, 0, 1)

	periodStart := time.Now().UTC()
	periodEnd := periodStart.AddDate(0, 0, 2)
	logID, logErr := o.repo.LogFetchStart(ctx, nil, periodStart, periodEnd)
	if logErr != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record fetch start", "error", logErr)
	}

	started := time.Now()
	combined := &FetchSummary{}

	if summary, err := o.fetchDateAllZones(ctx, today); err != nil {
		combined.ErrorCount++
		combined.Errors = append(combined.Errors, "today fetch failed: "+err.Error())
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch today's prices", "error", err)
	} else {
		combined.merge(summary)
	}

	if summary, err := o.fetchDateAllZones(ctx, tomorrow); err != nil {
		combined.ErrorCount++
		combined.Errors = append(combined.Errors, "tomorrow fetch failed: "+err.Error())
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch tomorrow's prices", "error", err)
	} else {
		combined.merge(summary)
	}

	o.closeFetchLog(ctx, logID, logErr, combined, started)
	return combined, nil
}

// fetchDateAllZones loads every active zone and fetches date for all of
// them, with at most maxInFlight fetches running concurrently. All
// successfully fetched prices across zones are concatenated and upserted
// in one transactional batch — this is the sole write path.
func (o *Orchestrator) fetchDateAllZones(ctx context.Context, date time.Time) (*FetchSummary, error) {
	zones, err := o.repo.LoadZones(ctx)
	if err != nil {
		return nil, err
	}
	return o.fetchZonesForDate(ctx, zones, date)
}

// FetchTomorrowIfMissing checks each active zone's tomorrow-data
// availability; if every zone already has at least one price row for
// tomorrow, it is a no-op. Otherwise it refetches only the zones missing data, applying the
// same fanout and single-batch upsert as fetchDateAllZones.
func (o *Orchestrator) FetchTomorrowIfMissing(ctx context.Context) (*FetchSummary, error) {
	zones, err := o.repo.LoadZones(ctx)
	if err != nil {
		return nil, err
	}

	var missing []types.BiddingZone
	for _, zone := range zones {
		has, err := o.repo.HasTomorrowData(ctx, zone.ZoneCode)
		if err != nil {
			return nil, err
		}
		if !has {
			missing = append(missing, zone)
		}
	}

	if len(missing) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "tomorrow's data already exists for all zones, skipping fetch")
		return &FetchSummary{}, nil
	}
	log.Ctx(ctx).InfoContext(ctx, "zones needing tomorrow's data", "count", len(missing))

	tomorrow := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	periodStart := tomorrow
	periodEnd := tomorrow.AddDate(0, 0, 1)
	logID, logErr := o.repo.LogFetchStart(ctx, nil, periodStart, periodEnd)
	if logErr != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record fetch start", "error", logErr)
	}

	started := time.Now()
	summary, err := o.fetchZonesForDate(ctx, missing, tomorrow)
	if err != nil {
		return nil, err
	}

	o.closeFetchLog(ctx, logID, logErr, summary, started)
	return summary, nil
}

// fetchZonesForDate fans out fetches for zones on date, classifies each
// outcome as succeeded/no-data/failed, and issues a single batch upsert
// for every price fetched successfully.
func (o *Orchestrator) fetchZonesForDate(ctx context.Context, zones []types.BiddingZone, date time.Time) (*FetchSummary, error) {
	outcomes := make([]zoneOutcome, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	for i, zone := range zones {
		i, zone := i, zone
		g.Go(func() error {
			outcomes[i] = o.fetchOneZone(gctx, zone, date)
			return nil
		})
	}
	// errors are captured per-zone in zoneOutcome, not propagated as a
	// group failure, so one zone's outage never aborts the others.
	_ = g.Wait()

	summary := &FetchSummary{}
	var allPrices []types.Price
	for _, outcome := range outcomes {
		switch {
		case outcome.err != nil:
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, outcome.zoneCode+": "+outcome.err.Error())
			o.telemetry.IncCounter("orchestrator_fetch_errors_total", "zone", outcome.zoneCode)
		case len(outcome.prices) == 0:
			summary.NoDataCount++
		default:
			summary.SuccessCount++
			allPrices = append(allPrices, outcome.prices...)
		}
	}

	if len(allPrices) > 0 {
		inserted, err := o.repo.UpsertPrices(ctx, allPrices)
		if err != nil {
			return nil, err
		}
		summary.TotalInserted = inserted
		log.Ctx(ctx).InfoContext(ctx, "batch upserted prices", "count", inserted)
	}

	log.Ctx(ctx).InfoContext(ctx, "completed fetch for date",
		"succeeded", summary.SuccessCount, "failed", summary.ErrorCount,
		"no_data", summary.NoDataCount, "total_prices", summary.TotalInserted)

	return summary, nil
}

// fetchOneZone fetches a single zone/date and records per-zone telemetry.
// It never writes to the repository — all persistence happens in the
// date-level batch upsert in fetchZonesForDate.
func (o *Orchestrator) fetchOneZone(ctx context.Context, zone types.BiddingZone, date time.Time) zoneOutcome {
	started := time.Now()
	prices, err := o.fetcher.FetchDayAheadPrices(ctx, zone, date)
	o.telemetry.ObserveHistogram("orchestrator_fetch_duration_seconds", time.Since(started).Seconds(), "zone", zone.ZoneCode)

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "fetch failed", "zone", zone.ZoneCode, "error", err)
		return zoneOutcome{zoneCode: zone.ZoneCode, err: err}
	}
	if len(prices) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no data available for zone", "zone", zone.ZoneCode)
	} else {
		log.Ctx(ctx).InfoContext(ctx, "fetched prices for zone", "zone", zone.ZoneCode, "count", len(prices))
	}
	return zoneOutcome{zoneCode: zone.ZoneCode, prices: prices}
}

// closeFetchLog sets the batch fetch-log row to its terminal status: error
// if any zone failed, nodata if nothing succeeded but some zones reported
// no data, success otherwise.
func (o *Orchestrator) closeFetchLog(ctx context.Context, logID int64, logErr error, summary *FetchSummary, started time.Time) {
	if logErr != nil {
		return
	}

	status := types.FetchStatusSuccess
	switch {
	case summary.ErrorCount > 0:
		status = types.FetchStatusError
	case summary.SuccessCount == 0 && summary.NoDataCount > 0:
		status = types.FetchStatusNoData
	}

	var errMsg *string
	if len(summary.Errors) > 0 {
		msg := strings.Join(summary.Errors, "; ")
		errMsg = &msg
	}

	inserted := summary.TotalInserted
	duration := time.Since(started)
	if err := o.repo.LogFetchComplete(ctx, logID, status, &inserted, errMsg, nil, duration); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record fetch completion", "error", err)
	}
}

// Package backfill finds and refetches gaps in persisted price history: any
// (date, zone) pair with fewer than 24 hourly rows.
package backfill

import (
	"context"
	"time"

	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/repository"
	"github.com/entsoeprices/dayahead/pkg/telemetry"
	"github.com/entsoeprices/dayahead/pkg/types"
	"golang.org/x/sync/errgroup"
)

const maxInFlight = 5

// ZoneFetcher is the subset of *client.Client the backfill engine needs.
type ZoneFetcher interface {
	FetchDayAheadPrices(ctx context.Context, zone types.BiddingZone, d time.Time) ([]types.Price, error)
}

// Engine detects and refetches gaps in persisted history.
type Engine struct {
	repo      repository.Repository
	fetcher   ZoneFetcher
	telemetry telemetry.Sink
}

// New constructs an Engine. A nil telemetry sink is replaced with a Noop.
func New(repo repository.Repository, fetcher ZoneFetcher, sink telemetry.Sink) *Engine {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Engine{repo: repo, fetcher: fetcher, telemetry: sink}
}

// gapOutcome is the result of refetching one (date, zone) gap, before every
// gap's prices are concatenated and upserted in a single batch.
type gapOutcome struct {
	gap    types.Gap
	prices []types.Price
	err    error
}

// Result aggregates a backfill run over an inclusive date range.
type Result struct {
	DatesChecked  int
	DatesWithGaps int
	PricesFetched int
	PricesStored  int64
	GapsFound     []types.Gap
	Errors        []string
}

// Run detects gaps over the inclusive UTC date range [start, end] for
// zoneCodes (every active zone when zoneCodes is empty), refetches each
// with at most maxInFlight refetches in flight, and upserts every
// refetched price in a single batch.
func (e *Engine) Run(ctx context.Context, start, end time.Time, zoneCodes []string) (*Result, error) {
	gaps, err := e.repo.FindGaps(ctx, start, end, zoneCodes)
	if err != nil {
		return nil, err
	}
	e.telemetry.SetGauge("backfill_gaps_found", float64(len(gaps)))

	result := &Result{
		DatesChecked:  datesChecked(start, end),
		DatesWithGaps: distinctDates(gaps),
		GapsFound:     gaps,
	}
	if len(gaps) == 0 {
		return result, nil
	}

	zoneCache := map[string]types.BiddingZone{}
	outcomes := make([]gapOutcome, len(gaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	for i, gap := range gaps {
		i, gap := i, gap
		zone, ok := zoneCache[gap.ZoneCode]
		if !ok {
			zone, err = e.repo.GetZoneByCode(ctx, gap.ZoneCode)
			if err != nil {
				outcomes[i] = gapOutcome{gap: gap, err: err}
				continue
			}
			zoneCache[gap.ZoneCode] = zone
		}
		g.Go(func() error {
			outcomes[i] = e.refetchGap(gctx, zone, gap)
			return nil
		})
	}
	_ = g.Wait()

	var allPrices []types.Price
	for _, outcome := range outcomes {
		if outcome.err != nil {
			result.Errors = append(result.Errors, outcome.gap.ZoneCode+": "+outcome.err.Error())
			continue
		}
		result.PricesFetched += len(outcome.prices)
		allPrices = append(allPrices, outcome.prices...)
	}

	if len(allPrices) > 0 {
		inserted, err := e.repo.UpsertPrices(ctx, allPrices)
		if err != nil {
			return nil, err
		}
		result.PricesStored = inserted
		log.Ctx(ctx).InfoContext(ctx, "backfill batch upserted prices", "count", inserted)
	}

	return result, nil
}

func (e *Engine) refetchGap(ctx context.Context, zone types.BiddingZone, gap types.Gap) gapOutcome {
	prices, err := e.fetcher.FetchDayAheadPrices(ctx, zone, gap.Date)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "backfill refetch failed", "zone", gap.ZoneCode, "date", gap.Date, "error", err)
		e.telemetry.IncCounter("backfill_refetch_errors_total", "zone", gap.ZoneCode)
		return gapOutcome{gap: gap, err: err}
	}
	e.telemetry.IncCounter("backfill_refetch_success_total", "zone", gap.ZoneCode)
	return gapOutcome{gap: gap, prices: prices}
}

// datesChecked counts the inclusive number of calendar days in [start, end].
func datesChecked(start, end time.Time) int {
	days := int(end.Truncate(24*time.Hour).Sub(start.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days + 1
}

// distinctDates counts the number of unique dates represented in gaps.
func distinctDates(gaps []types.Gap) int {
	seen := make(map[time.Time]struct{}, len(gaps))
	for _, gap := range gaps {
		seen[gap.Date] = struct{}{}
	}
	return len(seen)
}

package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	gaps      []types.Gap
	zones     map[string]types.BiddingZone
	upserts   [][]types.Price
	findErr   error
	upsertErr error
}

func (f *fakeRepo) LoadZones(ctx context.Context) ([]types.BiddingZone, error) { return nil, nil }
func (f *fakeRepo) GetZoneByCode(ctx context.Context, code string) (types.BiddingZone, error) {
	return f.zones[code], nil
}
func (f *fakeRepo) GetZoneByEIC(ctx context.Context, eicCode string) (types.BiddingZone, error) {
	return types.BiddingZone{}, nil
}
func (f *fakeRepo) GetZonesByCountry(ctx context.Context, countryCode string) ([]types.BiddingZone, error) {
	return nil, nil
}
func (f *fakeRepo) GetCountries(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeRepo) UpsertPrices(ctx context.Context, prices []types.Price) (int64, error) {
	f.upserts = append(f.upserts, prices)
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return int64(len(prices)), nil
}
func (f *fakeRepo) GetPricesByZone(ctx context.Context, zoneCode string, start, end time.Time) ([]types.Price, error) {
	return nil, nil
}
func (f *fakeRepo) GetPricesByCountry(ctx context.Context, countryCode string, start, end time.Time) ([]types.Price, error) {
	return nil, nil
}
func (f *fakeRepo) GetLatestPrices(ctx context.Context, maxAgeHours *int) ([]types.Price, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) LogFetchStart(ctx context.Context, zoneCode *string, periodStart, periodEnd time.Time) (int64, error) {
	return 1, nil
}
func (f *fakeRepo) LogFetchComplete(ctx context.Context, id int64, status types.FetchStatus, recordsInserted *int64, errMsg *string, httpStatus *int, duration time.Duration) error {
	return nil
}
func (f *fakeRepo) HasTomorrowData(ctx context.Context, zoneCode string) (bool, error) {
	return false, nil
}
func (f *fakeRepo) FindGaps(ctx context.Context, start, end time.Time, zoneCodes []string) ([]types.Gap, error) {
	return f.gaps, f.findErr
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

type fakeFetcher struct {
	prices map[string][]types.Price
	err    error
}

func (f *fakeFetcher) FetchDayAheadPrices(ctx context.Context, zone types.BiddingZone, d time.Time) ([]types.Price, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prices[zone.ZoneCode], nil
}

func dateRange() (time.Time, time.Time) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	return start, end
}

func TestRun_NoGaps(t *testing.T) {
	start, end := dateRange()
	e := New(&fakeRepo{}, &fakeFetcher{}, nil)
	result, err := e.Run(context.Background(), start, end, nil)
	require.NoError(t, err)
	assert.Zero(t, len(result.GapsFound))
	assert.Equal(t, 3, result.DatesChecked)
	assert.Zero(t, result.DatesWithGaps)
}

func TestRun_RefetchesGapsInSingleBatch(t *testing.T) {
	start, end := dateRange()
	repo := &fakeRepo{
		gaps: []types.Gap{
			{Date: start, ZoneCode: "DE-LU", ExistingCount: 20, MissingHours: 4},
			{Date: start.AddDate(0, 0, 1), ZoneCode: "AT", ExistingCount: 0, MissingHours: 24},
		},
		zones: map[string]types.BiddingZone{
			"DE-LU": {ZoneCode: "DE-LU", Timezone: "Europe/Berlin"},
			"AT":    {ZoneCode: "AT", Timezone: "Europe/Vienna"},
		},
	}
	fetcher := &fakeFetcher{prices: map[string][]types.Price{
		"DE-LU": {{Timestamp: time.Now(), BiddingZone: "DE-LU"}},
		"AT":    {{Timestamp: time.Now(), BiddingZone: "AT"}},
	}}
	e := New(repo, fetcher, nil)

	result, err := e.Run(context.Background(), start, end, []string{"DE-LU", "AT"})
	require.NoError(t, err)
	require.Len(t, result.GapsFound, 2)
	assert.Equal(t, 2, result.DatesWithGaps)
	assert.Equal(t, 2, result.PricesFetched)
	assert.EqualValues(t, 2, result.PricesStored)
	assert.Empty(t, result.Errors)
	require.Len(t, repo.upserts, 1, "all refetched gaps must be upserted in a single batch")
	assert.Len(t, repo.upserts[0], 2)
}

func TestRun_RefetchErrorIsCollected(t *testing.T) {
	start, end := dateRange()
	repo := &fakeRepo{
		gaps: []types.Gap{
			{Date: start, ZoneCode: "DE-LU", ExistingCount: 20, MissingHours: 4},
		},
		zones: map[string]types.BiddingZone{"DE-LU": {ZoneCode: "DE-LU", Timezone: "Europe/Berlin"}},
	}
	fetcher := &fakeFetcher{err: errors.New("fetch boom")}
	e := New(repo, fetcher, nil)

	result, err := e.Run(context.Background(), start, end, []string{"DE-LU"})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Zero(t, result.PricesStored)
	assert.Empty(t, repo.upserts)
}

func TestRun_FindGapsError(t *testing.T) {
	start, end := dateRange()
	e := New(&fakeRepo{findErr: errors.New("db down")}, &fakeFetcher{}, nil)
	_, err := e.Run(context.Background(), start, end, nil)
	require.Error(t, err)
}

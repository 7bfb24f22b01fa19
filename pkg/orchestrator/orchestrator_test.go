package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	zones        []types.BiddingZone
	tomorrowData map[string]bool
	upserts      [][]types.Price
	loadErr      error
	upsertErr    error
	tomorrowErr  error
}

func (f *fakeRepo) LoadZones(ctx context.Context) ([]types.BiddingZone, error) {
	return f.zones, f.loadErr
}
func (f *fakeRepo) GetZoneByCode(ctx context.Context, code string) (types.BiddingZone, error) {
	return types.BiddingZone{}, nil
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
	if f.tomorrowErr != nil {
		return false, f.tomorrowErr
	}
	return f.tomorrowData[zoneCode], nil
}
func (f *fakeRepo) FindGaps(ctx context.Context, start, end time.Time, zoneCodes []string) ([]types.Gap, error) {
	return nil, nil
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

type fakeFetcher struct {
	byZone map[string][]types.Price
	errs   map[string]error
}

func (f *fakeFetcher) FetchDayAheadPrices(ctx context.Context, zone types.BiddingZone, d time.Time) ([]types.Price, error) {
	if err, ok := f.errs[zone.ZoneCode]; ok {
		return nil, err
	}
	return f.byZone[zone.ZoneCode], nil
}

func TestFetchZonesForDate_MixedOutcomes(t *testing.T) {
	zones := []types.BiddingZone{
		{ZoneCode: "DE-LU", Timezone: "Europe/Berlin"},
		{ZoneCode: "AT", Timezone: "Europe/Vienna"},
		{ZoneCode: "NL", Timezone: "Europe/Amsterdam"},
	}
	repo := &fakeRepo{zones: zones}
	fetcher := &fakeFetcher{
		byZone: map[string][]types.Price{
			"DE-LU": {{Timestamp: time.Now(), BiddingZone: "DE-LU", PriceKWH: decimal.NewFromFloat(0.05)}},
			"AT":    {},
		},
		errs: map[string]error{"NL": errors.New("boom")},
	}
	o := New(repo, fetcher, nil)

	summary, err := o.fetchZonesForDate(context.Background(), zones, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.NoDataCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.EqualValues(t, 1, summary.TotalInserted)
	require.Len(t, repo.upserts, 1, "all successful zones must be upserted in a single batch")
	assert.Len(t, repo.upserts[0], 1)
}

func TestFetchAllPrices_BothDatesSucceed(t *testing.T) {
	zones := []types.BiddingZone{{ZoneCode: "DE-LU", Timezone: "Europe/Berlin"}}
	repo := &fakeRepo{zones: zones}
	fetcher := &fakeFetcher{
		byZone: map[string][]types.Price{
			"DE-LU": {{Timestamp: time.Now(), BiddingZone: "DE-LU", PriceKWH: decimal.NewFromFloat(0.05)}},
		},
	}
	o := New(repo, fetcher, nil)

	summary, err := o.FetchAllPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.EqualValues(t, 2, summary.TotalInserted)
	assert.Len(t, repo.upserts, 2, "one batch upsert per date, today and tomorrow")
}

func TestFetchAllPrices_LoadZonesErrorIsCapturedNotReturned(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.New("db down")}
	o := New(repo, &fakeFetcher{}, nil)

	summary, err := o.FetchAllPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ErrorCount)
	assert.Len(t, summary.Errors, 2)
}

func TestFetchTomorrowIfMissing_SkipsWhenAllZonesHaveData(t *testing.T) {
	zones := []types.BiddingZone{
		{ZoneCode: "DE-LU"},
		{ZoneCode: "AT"},
	}
	repo := &fakeRepo{
		zones:        zones,
		tomorrowData: map[string]bool{"DE-LU": true, "AT": true},
	}
	fetcher := &fakeFetcher{}
	o := New(repo, fetcher, nil)

	summary, err := o.FetchTomorrowIfMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Empty(t, repo.upserts)
}

func TestFetchTomorrowIfMissing_FetchesOnlyMissingZones(t *testing.T) {
	zones := []types.BiddingZone{
		{ZoneCode: "DE-LU"},
		{ZoneCode: "AT"},
	}
	repo := &fakeRepo{
		zones:        zones,
		tomorrowData: map[string]bool{"DE-LU": true, "AT": false},
	}
	fetcher := &fakeFetcher{
		byZone: map[string][]types.Price{
			"AT": {{Timestamp: time.Now(), BiddingZone: "AT", PriceKWH: decimal.NewFromFloat(0.07)}},
		},
	}
	o := New(repo, fetcher, nil)

	summary, err := o.FetchTomorrowIfMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
	require.Len(t, repo.upserts, 1)
	assert.Len(t, repo.upserts[0], 1)
	assert.Equal(t, "AT", repo.upserts[0][0].BiddingZone)
}

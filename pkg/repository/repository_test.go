package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestLoadZones(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"zone_code", "zone_name", "country_code", "country_name", "eic_code", "timezone", "active", "created_at", "updated_at"}).
		AddRow("DE-LU", "Germany-Luxembourg", "DE", "Germany", "10Y1001A1001A82H", "Europe/Berlin", true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM bidding_zones WHERE active").WillReturnRows(rows)

	zones, err := repo.LoadZones(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, "DE-LU", zones[0].ZoneCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetZoneByCode_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT .* FROM bidding_zones WHERE zone_code").
		WithArgs("ZZ").
		WillReturnRows(sqlmock.NewRows([]string{"zone_code", "zone_name", "country_code", "country_name", "eic_code", "timezone", "active", "created_at", "updated_at"}))

	_, err := repo.GetZoneByCode(context.Background(), "ZZ")
	require.Error(t, err)
	var notFound *NotFound
	require.ErrorAs(t, err, &notFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPrices_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	n, err := repo.UpsertPrices(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPrices(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO electricity_prices").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	prices := []types.Price{
		{Timestamp: time.Now().UTC(), BiddingZone: "DE-LU", PriceKWH: decimal.NewFromFloat(0.05), Currency: types.CurrencyEUR, Resolution: types.ResolutionHourly, FetchedAt: time.Now().UTC()},
		{Timestamp: time.Now().UTC().Add(time.Hour), BiddingZone: "DE-LU", PriceKWH: decimal.NewFromFloat(0.06), Currency: types.CurrencyEUR, Resolution: types.ResolutionHourly, FetchedAt: time.Now().UTC()},
	}
	n, err := repo.UpsertPrices(context.Background(), prices)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestPrices_WithMaxAge(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"timestamp", "bidding_zone", "price_kwh", "currency", "resolution", "fetched_at"}).
		AddRow(time.Now(), "DE-LU", "0.05", types.CurrencyEUR, types.ResolutionHourly, time.Now())
	mock.ExpectQuery("SELECT DISTINCT ON \\(bidding_zone\\).*WHERE timestamp >= NOW").
		WithArgs(24).
		WillReturnRows(rows)

	hours := 24
	prices, err := repo.GetLatestPrices(context.Background(), &hours)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasTomorrowData(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\).*FROM electricity_prices").
		WithArgs("DE-LU").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(24))

	has, err := repo.HasTomorrowData(context.Background(), "DE-LU")
	require.NoError(t, err)
	require.True(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGaps(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"date", "zone_code", "existing_count"}).
		AddRow(start, "DE-LU", 20)
	mock.ExpectQuery("WITH date_range AS").
		WithArgs(start, end, pq.Array([]string{"DE-LU", "AT"})).
		WillReturnRows(rows)

	gaps, err := repo.FindGaps(context.Background(), start, end, []string{"DE-LU", "AT"})
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.Equal(t, "DE-LU", gaps[0].ZoneCode)
	require.Equal(t, 4, gaps[0].MissingHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogFetchStartAndComplete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("INSERT INTO fetch_log").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	id, err := repo.LogFetchStart(context.Background(), nil, time.Now(), time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 7, id)

	inserted := int64(24)
	mock.ExpectExec("UPDATE fetch_log SET").WillReturnResult(sqlmock.NewResult(0, 1))
	err = repo.LogFetchComplete(context.Background(), id, types.FetchStatusSuccess, &inserted, nil, nil, 1500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOlderThan(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("DELETE FROM electricity_prices").WillReturnResult(sqlmock.NewResult(0, 5))
	n, err := repo.DeleteOlderThan(context.Background(), time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := New(sqlx.NewDb(db, "postgres"))

	mock.ExpectPing()
	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

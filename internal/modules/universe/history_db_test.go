package universe

import (
	"context"
	"math"
	"testing"
	"time"

	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestHistoryDB_SaveAndGetDailyPrices(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h := NewHistoryDB(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	err := h.SavePrices(ctx, "QLD", []DailyPrice{
		{Date: day(2), Close: 70},
		{Date: day(3), Close: 71},
		{Date: day(4), Close: 72},
	})
	require.NoError(t, err)

	// Upsert replaces the existing close
	require.NoError(t, h.SavePrices(ctx, "QLD", []DailyPrice{{Date: day(4), Close: 72.5}}))

	prices, err := h.GetDailyPrices(ctx, "QLD", 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, day(4), prices[0].Date)
	assert.Equal(t, 72.5, prices[0].Close)
	assert.Equal(t, day(3), prices[1].Date)
}

func TestHistoryDB_SavePrices_RejectsInvalid(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h := NewHistoryDB(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	err := h.SavePrices(ctx, "QLD", []DailyPrice{
		{Date: day(2), Close: 70},
		{Date: day(3), Close: math.NaN()},
	})
	require.Error(t, err)

	// Nothing from the failed batch is committed
	prices, err := h.GetDailyPrices(ctx, "QLD", 10)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestHistoryDB_GetPrices(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h := NewHistoryDB(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, h.SavePrices(ctx, "QLD", []DailyPrice{
		{Date: day(2), Close: 70},
		{Date: day(3), Close: 71},
		{Date: day(5), Close: 73},
		{Date: day(10), Close: 75},
	}))
	require.NoError(t, h.SavePrices(ctx, "SSO", []DailyPrice{
		{Date: day(3), Close: 60},
		{Date: day(4), Close: 61},
		{Date: day(10), Close: 62},
	}))

	history, err := h.GetPrices(ctx, []string{"SSO", "QLD"}, 7)
	require.NoError(t, err)

	// Window is [Jan 3, Jan 10], union of both tickers' dates
	assert.Equal(t, []string{"SSO", "QLD"}, history.Tickers)
	assert.Equal(t, []time.Time{day(3), day(4), day(5), day(10)}, history.Dates)
	assert.Equal(t, 71.0, history.Closes["QLD"][0])
	assert.True(t, math.IsNaN(history.Closes["QLD"][1]))
	assert.Equal(t, 61.0, history.Closes["SSO"][1])
	assert.True(t, math.IsNaN(history.Closes["SSO"][2]))
	assert.NoError(t, history.Validate())
}

func TestHistoryDB_GetPrices_Empty(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h := NewHistoryDB(db.Conn(), zerolog.Nop())

	_, err := h.GetPrices(context.Background(), []string{"QLD"}, 30)
	assert.Error(t, err)
}

func TestHistoryDB_SaveHistory_RoundTrip(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h := NewHistoryDB(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	fixture := testingpkg.NewPriceHistoryFixture(testingpkg.DefaultAssets(), 40, 7)
	require.NoError(t, h.SaveHistory(ctx, fixture))

	loaded, err := h.GetPrices(ctx, fixture.Tickers, 365)
	require.NoError(t, err)

	assert.Equal(t, fixture.Dates, loaded.Dates)
	for _, ticker := range fixture.Tickers {
		assert.InDeltaSlice(t, fixture.Closes[ticker], loaded.Closes[ticker], 1e-9, ticker)
	}
}

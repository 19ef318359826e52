package universe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePrices = `date,QLD,SSO
2024-01-02,70.00,60.00
2024-01-03,71.00,
2024-01-04,72.50,61.00
2024-01-05,72.00,61.50
`

func TestReadPriceCSV(t *testing.T) {
	h, err := ReadPriceCSV(strings.NewReader(samplePrices))
	require.NoError(t, err)

	assert.Equal(t, []string{"QLD", "SSO"}, h.Tickers)
	require.Equal(t, 4, h.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), h.Dates[0])
	assert.Equal(t, 72.5, h.Closes["QLD"][2])
	assert.True(t, math.IsNaN(h.Closes["SSO"][1]))
}

func TestReadPriceCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no date column", "ticker,QLD\n2024-01-02,1\n"},
		{"bad date", "date,QLD\n01/02/2024,1\n"},
		{"bad price", "date,QLD\n2024-01-02,abc\n"},
		{"ragged row", "date,QLD,SSO\n2024-01-02,1\n"},
		{"dates out of order", "date,QLD\n2024-01-03,1\n2024-01-02,1\n"},
		{"duplicate ticker", "date,QLD,qld\n2024-01-02,1,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPriceCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestCSVPriceSource_GetPrices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(samplePrices), 0644))

	src := NewCSVPriceSource(path, zerolog.Nop())

	t.Run("selects tickers in request order", func(t *testing.T) {
		h, err := src.GetPrices(context.Background(), []string{"SSO", "QLD"}, 30)
		require.NoError(t, err)
		assert.Equal(t, []string{"SSO", "QLD"}, h.Tickers)
		assert.Equal(t, 4, h.Len())
	})

	t.Run("window ends at last date", func(t *testing.T) {
		h, err := src.GetPrices(context.Background(), []string{"QLD"}, 1)
		require.NoError(t, err)
		require.Equal(t, 2, h.Len())
		assert.Equal(t, 72.5, h.Closes["QLD"][0])
	})

	t.Run("unknown ticker", func(t *testing.T) {
		_, err := src.GetPrices(context.Background(), []string{"TLT"}, 30)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		missing := NewCSVPriceSource(filepath.Join(t.TempDir(), "nope.csv"), zerolog.Nop())
		_, err := missing.GetPrices(context.Background(), []string{"QLD"}, 30)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := src.GetPrices(ctx, []string{"QLD"}, 30)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

package universe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/utils"
	"github.com/rs/zerolog"
)

// ReadPriceCSV parses a wide price table:
//
//	date,QLD,SSO,DDM,UBT
//	2024-01-02,71.20,64.10,81.00,29.90
//
// Empty cells are missing observations. Rows must be in ascending date order.
func ReadPriceCSV(r io.Reader) (*domain.PriceHistory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return nil, fmt.Errorf("header must start with a date column followed by tickers")
	}

	tickers := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		tickers = append(tickers, strings.ToUpper(strings.TrimSpace(h)))
	}

	history := domain.NewPriceHistory(tickers, nil)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := utils.ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		history.Dates = append(history.Dates, date)

		for i, t := range tickers {
			v := math.NaN()
			if cell := strings.TrimSpace(record[i+1]); cell != "" {
				v, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d, %s: invalid price %q", line, t, cell)
				}
			}
			history.Closes[t] = append(history.Closes[t], v)
		}
	}

	if err := history.Validate(); err != nil {
		return nil, err
	}

	return history, nil
}

// CSVPriceSource serves prices from a wide CSV file.
type CSVPriceSource struct {
	path string
	log  zerolog.Logger
}

// NewCSVPriceSource creates a price source backed by the CSV file at path.
func NewCSVPriceSource(path string, log zerolog.Logger) *CSVPriceSource {
	return &CSVPriceSource{
		path: path,
		log:  log.With().Str("component", "csv_price_source").Logger(),
	}
}

// Load reads the whole file.
func (s *CSVPriceSource) Load() (*domain.PriceHistory, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	history, err := ReadPriceCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return history, nil
}

// GetPrices implements domain.PriceSource. The window ends at the last date
// in the file.
func (s *CSVPriceSource) GetPrices(ctx context.Context, tickers []string, lookbackDays int) (*domain.PriceHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.Load()
	if err != nil {
		return nil, err
	}

	out := &domain.PriceHistory{
		Dates:   all.Dates,
		Tickers: make([]string, 0, len(tickers)),
		Closes:  make(map[string][]float64, len(tickers)),
	}
	for _, t := range tickers {
		col, ok := all.Closes[t]
		if !ok {
			return nil, fmt.Errorf("ticker %s not found in %s", t, s.path)
		}
		out.Tickers = append(out.Tickers, t)
		out.Closes[t] = col
	}

	windowed := out.Since(out.LastDate().AddDate(0, 0, -lookbackDays))

	s.log.Debug().
		Str("path", s.path).
		Int("rows", windowed.Len()).
		Msg("Loaded prices from CSV")

	return windowed, nil
}

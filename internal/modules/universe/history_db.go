package universe

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/utils"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// GetDailyPrices fetches the most recent closes for a ticker, newest first.
func (h *HistoryDB) GetDailyPrices(ctx context.Context, ticker string, limit int) ([]DailyPrice, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = utils.UnixToDate(dateUnix)
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// LatestDate returns the newest stored date across tickers, or the zero time
// when none of them has prices.
func (h *HistoryDB) LatestDate(ctx context.Context, tickers []string) (time.Time, error) {
	if len(tickers) == 0 {
		return time.Time{}, nil
	}

	query, args := inClause("SELECT MAX(date) FROM daily_prices WHERE ticker IN ", tickers)
	var latest sql.NullInt64
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return utils.UnixToDate(latest.Int64), nil
}

// GetPrices implements domain.PriceSource. The window ends at the newest date
// stored for any of the tickers and spans lookbackDays calendar days. Dates on
// which some ticker has no close are NaN for that ticker.
func (h *HistoryDB) GetPrices(ctx context.Context, tickers []string, lookbackDays int) (*domain.PriceHistory, error) {
	done := utils.MeasureDBQuery("history_get_prices", h.log)

	end, err := h.LatestDate(ctx, tickers)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		return nil, fmt.Errorf("no stored prices for %v", tickers)
	}
	start := end.AddDate(0, 0, -lookbackDays)

	query, args := inClause(`
		SELECT ticker, date, close
		FROM daily_prices
		WHERE date >= ? AND date <= ? AND ticker IN `, tickers)
	args = append([]interface{}{start.Unix(), end.Unix()}, args...)

	rows, err := h.db.QueryContext(ctx, query+" ORDER BY date ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	type point struct {
		ticker string
		date   int64
		close  float64
	}
	var points []point
	dateSet := make(map[int64]struct{})
	for rows.Next() {
		var p point
		if err := rows.Scan(&p.ticker, &p.date, &p.close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		points = append(points, p)
		dateSet[p.date] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	stamps := make([]int64, 0, len(dateSet))
	for d := range dateSet {
		stamps = append(stamps, d)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	index := make(map[int64]int, len(stamps))
	dates := make([]time.Time, len(stamps))
	for i, d := range stamps {
		index[d] = i
		dates[i] = utils.UnixToDate(d)
	}

	history := domain.NewPriceHistory(append([]string(nil), tickers...), dates)
	for _, p := range points {
		history.Closes[p.ticker][index[p.date]] = p.close
	}

	done(int64(len(points)))

	h.log.Debug().
		Strs("tickers", tickers).
		Int("lookback_days", lookbackDays).
		Int("dates", len(dates)).
		Msg("Loaded price history")

	return history, nil
}

// SavePrices upserts closes for one ticker in a single transaction.
func (h *HistoryDB) SavePrices(ctx context.Context, ticker string, prices []DailyPrice) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be no-op if Commit succeeds

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_prices (ticker, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if !domain.IsValidPrice(p.Close) {
			return fmt.Errorf("invalid close %v for %s on %s", p.Close, ticker, p.Date.Format(utils.DateLayout))
		}
		date := time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, time.UTC)
		if _, err := stmt.ExecContext(ctx, ticker, date.Unix(), p.Close); err != nil {
			return fmt.Errorf("failed to insert daily price for %s: %w", p.Date.Format(utils.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	h.log.Info().
		Str("ticker", ticker).
		Int("count", len(prices)).
		Msg("Saved historical prices")

	return nil
}

// SaveHistory stores every valid close of a price history.
func (h *HistoryDB) SaveHistory(ctx context.Context, history *domain.PriceHistory) error {
	for _, t := range history.Tickers {
		col := history.Closes[t]
		prices := make([]DailyPrice, 0, len(col))
		for i, c := range col {
			if domain.IsValidPrice(c) {
				prices = append(prices, DailyPrice{Date: history.Dates[i], Close: c})
			}
		}
		if err := h.SavePrices(ctx, t, prices); err != nil {
			return err
		}
	}
	return nil
}

func inClause(prefix string, values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	placeholders := make([]byte, 0, 2*len(values))
	for i, v := range values {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	return prefix + "(" + string(placeholders) + ")", args
}

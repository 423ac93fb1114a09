package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// upsertDailyPriceSQL is the finality ratchet: a column takes the incoming
// value unless the existing row is already final and the incoming write is
// not, in which case the existing value is kept. is_final only ever moves
// from 0 to 1, never back. fetched_at always advances.
const upsertDailyPriceSQL = `
INSERT INTO daily_prices (
	stock_code, trade_date, adjust, open, close, high, low, volume, change_pct, source, is_final, fetched_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(stock_code, trade_date, adjust) DO UPDATE SET
	open = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.open ELSE excluded.open END,
	close = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.close ELSE excluded.close END,
	high = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.high ELSE excluded.high END,
	low = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.low ELSE excluded.low END,
	volume = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.volume ELSE excluded.volume END,
	change_pct = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.change_pct ELSE excluded.change_pct END,
	source = CASE WHEN daily_prices.is_final = 1 AND excluded.is_final = 0 THEN daily_prices.source ELSE excluded.source END,
	is_final = MAX(daily_prices.is_final, excluded.is_final),
	fetched_at = excluded.fetched_at
`

// UpsertDailyPrices writes rows within one transaction, applying the
// finality ratchet per row via upsertDailyPriceSQL.
func (s *Store) UpsertDailyPrices(ctx context.Context, rows []domain.DailyPriceRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertDailyPriceSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := timeutil.FormatDateTime(timeutil.NowBeijing())
	count := 0
	for _, row := range rows {
		isFinal := 0
		if row.IsFinal {
			isFinal = 1
		}
		if _, err := stmt.ExecContext(ctx,
			row.StockCode, row.TradeDate, normalizeAdjust(row.Adjust),
			row.Open, row.Close, row.High, row.Low, row.Volume, row.ChangePct, row.Source, isFinal, now,
		); err != nil {
			return count, fmt.Errorf("upsert daily price %s/%s: %w", row.StockCode, row.TradeDate, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("commit upsert tx: %w", err)
	}
	return count, nil
}

func normalizeAdjust(adjust string) string {
	if adjust == "" {
		return "none"
	}
	return adjust
}

// UpsertSymbols writes the symbol dictionary within one transaction.
func (s *Store) UpsertSymbols(ctx context.Context, rows []domain.SymbolRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert symbols tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (stock_code, stock_name, market, source, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stock_code) DO UPDATE SET
			stock_name = excluded.stock_name,
			market = excluded.market,
			source = excluded.source,
			synced_at = excluded.synced_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert symbols: %w", err)
	}
	defer stmt.Close()

	now := timeutil.FormatDateTime(timeutil.NowBeijing())
	count := 0
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.StockCode, row.StockName, row.Market, row.Source, now); err != nil {
			return count, fmt.Errorf("upsert symbol %s: %w", row.StockCode, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("commit upsert symbols tx: %w", err)
	}
	return count, nil
}

// ListSymbolCodes returns every known stock_code from the symbol dictionary,
// the Sync Service's source of "all known symbols" when a caller doesn't
// supply an explicit symbol list.
func (s *Store) ListSymbolCodes(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT stock_code FROM symbols ORDER BY stock_code")
	if err != nil {
		return nil, fmt.Errorf("list symbol codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan symbol code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// GetPriceRange returns bars for code in [start, end] sorted by trade_date
// ascending. When allowTodayUnfinal is false, rows for today's date with
// is_final=0 are excluded.
func (s *Store) GetPriceRange(ctx context.Context, code, start, end string, allowTodayUnfinal bool) ([]domain.DailyPriceRow, error) {
	query := `
		SELECT stock_code, trade_date, adjust, open, close, high, low, volume, change_pct, source, is_final
		FROM daily_prices
		WHERE stock_code = ? AND trade_date >= ? AND trade_date <= ?
	`
	args := []interface{}{code, start, end}
	if !allowTodayUnfinal {
		query += " AND NOT (trade_date = ? AND is_final = 0)"
		args = append(args, timeutil.TodayBeijing())
	}
	query += " ORDER BY trade_date ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get price range %s: %w", code, err)
	}
	defer rows.Close()
	return scanDailyPriceRows(rows)
}

func scanDailyPriceRows(rows *sql.Rows) ([]domain.DailyPriceRow, error) {
	var out []domain.DailyPriceRow
	for rows.Next() {
		var row domain.DailyPriceRow
		var isFinal int
		if err := rows.Scan(&row.StockCode, &row.TradeDate, &row.Adjust, &row.Open, &row.Close, &row.High, &row.Low, &row.Volume, &row.ChangePct, &row.Source, &isFinal); err != nil {
			return nil, fmt.Errorf("scan daily price row: %w", err)
		}
		row.IsFinal = isFinal == 1
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetLatestTradeDate returns the most recent trade_date in the store,
// optionally restricted to final bars.
func (s *Store) GetLatestTradeDate(ctx context.Context, onlyFinal bool) (string, error) {
	query := "SELECT MAX(trade_date) FROM daily_prices"
	if onlyFinal {
		query += " WHERE is_final = 1"
	}
	var date sql.NullString
	if err := s.conn.QueryRowContext(ctx, query).Scan(&date); err != nil {
		return "", fmt.Errorf("get latest trade date: %w", err)
	}
	return date.String, nil
}

// GetLatestTradeDateForSymbol returns the most recent trade_date stored for
// code, or "" if code has no bars at all.
func (s *Store) GetLatestTradeDateForSymbol(ctx context.Context, code string) (string, error) {
	var date sql.NullString
	err := s.conn.QueryRowContext(ctx, "SELECT MAX(trade_date) FROM daily_prices WHERE stock_code = ?", code).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("get latest trade date for symbol: %w", err)
	}
	return date.String, nil
}

// HasFinalForDate reports whether any symbol has a final bar for date.
func (s *Store) HasFinalForDate(ctx context.Context, date string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM daily_prices WHERE trade_date = ? AND is_final = 1", date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has final for date: %w", err)
	}
	return count > 0, nil
}

// HasFinalForSymbolDate reports whether code has a final bar for date.
func (s *Store) HasFinalForSymbolDate(ctx context.Context, code, date string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM daily_prices WHERE stock_code = ? AND trade_date = ? AND is_final = 1", code, date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has final for symbol date: %w", err)
	}
	return count > 0, nil
}

// SymbolDaySnapshot is the single-day picture of one symbol's bar.
// Restores the originating codebase's market_data_store.get_symbol_day_snapshot_info,
// dropped from the distilled spec prose but still a required read API.
type SymbolDaySnapshot struct {
	StockCode string
	TradeDate string
	IsFinal   bool
	Exists    bool
}

// GetSymbolDaySnapshotInfo reports whether code has any bar for date and
// whether it is final, without fetching the full row.
func (s *Store) GetSymbolDaySnapshotInfo(ctx context.Context, code, date string) (SymbolDaySnapshot, error) {
	var isFinal int
	err := s.conn.QueryRowContext(ctx, "SELECT is_final FROM daily_prices WHERE stock_code = ? AND trade_date = ?", code, date).Scan(&isFinal)
	if err == sql.ErrNoRows {
		return SymbolDaySnapshot{StockCode: code, TradeDate: date, Exists: false}, nil
	}
	if err != nil {
		return SymbolDaySnapshot{}, fmt.Errorf("get symbol day snapshot: %w", err)
	}
	return SymbolDaySnapshot{StockCode: code, TradeDate: date, Exists: true, IsFinal: isFinal == 1}, nil
}

// TradeDateCoverage reports, for one trade_date, how many symbols have a
// bar and how many of those are final.
type TradeDateCoverage struct {
	TradeDate   string
	SymbolCount int
	FinalCount  int
}

// GetTradeDateCoverage returns the coverage snapshot for date.
func (s *Store) GetTradeDateCoverage(ctx context.Context, date string) (TradeDateCoverage, error) {
	coverage := TradeDateCoverage{TradeDate: date}
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(1), COALESCE(SUM(is_final), 0) FROM daily_prices WHERE trade_date = ?
	`, date).Scan(&coverage.SymbolCount, &coverage.FinalCount)
	if err != nil {
		return TradeDateCoverage{}, fmt.Errorf("get trade date coverage: %w", err)
	}
	return coverage, nil
}

// recentCloseLookbackDays bounds the pre_close backfill scan in FetchRealtimePrice.
const recentCloseLookbackDays = 20

// GetRecentClose returns the most recent close strictly before date within
// the last recentCloseLookbackDays, used to backfill pre_close when no
// vendor supplies it.
func (s *Store) GetRecentClose(ctx context.Context, code, beforeDate string) (*float64, error) {
	cutoff, err := timeutil.ParseDate(beforeDate)
	if err != nil {
		return nil, fmt.Errorf("parse before date: %w", err)
	}
	earliest := timeutil.FormatDate(cutoff.AddDate(0, 0, -recentCloseLookbackDays))

	var close float64
	err = s.conn.QueryRowContext(ctx, `
		SELECT close FROM daily_prices
		WHERE stock_code = ? AND trade_date < ? AND trade_date >= ?
		ORDER BY trade_date DESC LIMIT 1
	`, code, beforeDate, earliest).Scan(&close)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recent close: %w", err)
	}
	return &close, nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market_data.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(f float64) *float64 { return &f }

func TestOpen_SeedsSyncStateRow(t *testing.T) {
	s := newTestStore(t)
	state, err := s.GetSyncState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.BootstrapIdle, state.BootstrapStatus)
}

func TestUpsertDailyPrices_FinalityRatchetPreventsRegression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	finalRow := domain.DailyPriceRow{
		StockCode: "600000.SH", TradeDate: "2024-01-02", Adjust: "qfq",
		Open: 10, Close: 10.5, High: 10.6, Low: 9.9, Volume: 1000,
		ChangePct: ptr(1.2), Source: "eastmoney", IsFinal: true,
	}
	n, err := s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{finalRow})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	staleNonFinal := finalRow
	staleNonFinal.Close = 999
	staleNonFinal.IsFinal = false
	_, err = s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{staleNonFinal})
	require.NoError(t, err)

	rows, err := s.GetPriceRange(ctx, "600000.SH", "2024-01-01", "2024-01-03", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.5, rows[0].Close, "final bar must not regress to stale non-final value")
	assert.True(t, rows[0].IsFinal)
}

func TestUpsertDailyPrices_FinalOverwritesNonFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nonFinal := domain.DailyPriceRow{
		StockCode: "600000.SH", TradeDate: "2024-01-02", Adjust: "qfq",
		Close: 10.0, Source: "eastmoney", IsFinal: false,
	}
	_, err := s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{nonFinal})
	require.NoError(t, err)

	final := nonFinal
	final.Close = 10.8
	final.IsFinal = true
	_, err = s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{final})
	require.NoError(t, err)

	rows, err := s.GetPriceRange(ctx, "600000.SH", "2024-01-01", "2024-01-03", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.8, rows[0].Close)
	assert.True(t, rows[0].IsFinal)
}

func TestGetPriceRange_ExcludesTodayUnfinalWhenNotAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := domain.DailyPriceRow{
		StockCode: "600000.SH", TradeDate: timeutil.TodayBeijing(), Adjust: "qfq",
		Close: 11.0, Source: "eastmoney", IsFinal: false,
	}
	_, err := s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{today})
	require.NoError(t, err)

	rows, err := s.GetPriceRange(ctx, "600000.SH", "2020-01-01", "2030-01-01", false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.GetPriceRange(ctx, "600000.SH", "2020-01-01", "2030-01-01", true)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestHasFinalForSymbolDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{{
		StockCode: "600000.SH", TradeDate: "2024-01-02", Adjust: "qfq", Close: 10, IsFinal: true,
	}})
	require.NoError(t, err)

	has, err := s.HasFinalForSymbolDate(ctx, "600000.SH", "2024-01-02")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasFinalForSymbolDate(ctx, "600000.SH", "2024-01-03")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetTradeDateCoverage_CountsSymbolsAndFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertDailyPrices(ctx, []domain.DailyPriceRow{
		{StockCode: "600000.SH", TradeDate: "2024-01-02", Adjust: "qfq", Close: 10, IsFinal: true},
		{StockCode: "000001.SZ", TradeDate: "2024-01-02", Adjust: "qfq", Close: 10, IsFinal: false},
	})
	require.NoError(t, err)

	coverage, err := s.GetTradeDateCoverage(ctx, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 2, coverage.SymbolCount)
	assert.Equal(t, 1, coverage.FinalCount)
}

func TestUpsertSymbols_OverwritesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertSymbols(ctx, []domain.SymbolRow{{StockCode: "600000.SH", StockName: "Old Name", Market: "SH", Source: "eastmoney"}})
	require.NoError(t, err)
	_, err = s.UpsertSymbols(ctx, []domain.SymbolRow{{StockCode: "600000.SH", StockName: "New Name", Market: "SH", Source: "eastmoney"}})
	require.NoError(t, err)

	rows, err := s.conn.QueryContext(ctx, "SELECT stock_name FROM symbols WHERE stock_code = ?", "600000.SH")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "New Name", name)
}

func TestResetBootstrapCursor_ClearsCursorAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	symbol := "600000.SH"
	status := domain.BootstrapRunning
	require.NoError(t, s.UpdateSyncState(ctx, SyncStateUpdate{BootstrapCursorSymbol: &symbol, BootstrapStatus: &status}))

	require.NoError(t, s.ResetBootstrapCursor(ctx))

	state, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.BootstrapCursorSymbol)
	assert.Equal(t, domain.BootstrapIdle, state.BootstrapStatus)
}

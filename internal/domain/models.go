// Package domain holds the value types shared by every market-data
// component: symbol dictionary rows, daily bars, realtime quotes, and the
// sync-state cursor persisted by the store.
package domain

import (
	"regexp"
	"strings"
)

// Market is the exchange tag suffixed onto a canonical stock code.
type Market string

const (
	MarketSH      Market = "SH"
	MarketSZ      Market = "SZ"
	MarketBJ      Market = "BJ"
	MarketUnknown Market = "UNK"
)

// HS300Code is the canonical code of the CSI 300 benchmark index, stored
// alongside equities using the same DailyPriceRow schema.
const HS300Code = "000300.SH"

var bareCodePattern = regexp.MustCompile(`^\d{6}$`)

// NormalizeCode canonicalizes a stock code into `<6 digits>.<market tag>`.
// Codes that already contain a dot are upper-cased and passed through
// unchanged; bare 6-digit codes have their market inferred from the
// leading digit. NormalizeCode is idempotent: NormalizeCode(NormalizeCode(x))
// == NormalizeCode(x).
func NormalizeCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.Contains(trimmed, ".") {
		return strings.ToUpper(trimmed)
	}
	if !bareCodePattern.MatchString(trimmed) {
		return strings.ToUpper(trimmed) + "." + string(MarketUnknown)
	}
	return trimmed + "." + string(inferMarket(trimmed))
}

func inferMarket(bareCode string) Market {
	switch bareCode[0] {
	case '6':
		return MarketSH
	case '0', '3':
		return MarketSZ
	case '4', '8', '9':
		return MarketBJ
	default:
		return MarketUnknown
	}
}

// MarketOf returns the market tag of a canonical (already-normalized) stock
// code, used by the failover loop to decide provider routing.
func MarketOf(code string) Market {
	parts := strings.SplitN(code, ".", 2)
	if len(parts) != 2 {
		return MarketUnknown
	}
	switch strings.ToUpper(parts[1]) {
	case string(MarketSH):
		return MarketSH
	case string(MarketSZ):
		return MarketSZ
	case string(MarketBJ):
		return MarketBJ
	default:
		return MarketUnknown
	}
}

// BareCode strips the market suffix, returning the 6-digit code vendors'
// realtime spot-quote endpoints key their rows by.
func BareCode(code string) string {
	parts := strings.SplitN(code, ".", 2)
	return parts[0]
}

// SymbolRow is one row of the symbol dictionary. Unique by StockCode.
type SymbolRow struct {
	StockCode string `json:"stock_code"`
	StockName string `json:"stock_name"`
	Market    string `json:"market"`
	Source    string `json:"source"`
}

// DailyPriceRow is one OHLC-V daily bar. Unique by (StockCode, TradeDate, Adjust).
type DailyPriceRow struct {
	StockCode string   `json:"stock_code"`
	TradeDate string   `json:"trade_date"`
	Adjust    string   `json:"adjust"`
	Source    string   `json:"source"`
	Open      float64  `json:"open"`
	Close     float64  `json:"close"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Volume    float64  `json:"volume"`
	ChangePct *float64 `json:"change_pct"`
	IsFinal   bool      `json:"is_final"`
}

// RealtimeQuote is the result of a FetchRealtimePrice call.
type RealtimeQuote struct {
	StockCode       string   `json:"stock_code"`
	QuoteTime       string   `json:"quote_time"`
	ProviderUsed    string   `json:"provider_used,omitempty"`
	ProviderPath    string   `json:"provider_path,omitempty"`
	Source          string   `json:"source,omitempty"`
	Message         string   `json:"message,omitempty"`
	FailedProviders []string `json:"failed_providers,omitempty"`
	Price           float64  `json:"price"`
	PreClose        *float64 `json:"pre_close"`
	Open            *float64 `json:"open"`
	Success         bool     `json:"success"`
}

// BootstrapStatus is the lifecycle state of a full-history backfill.
type BootstrapStatus string

const (
	BootstrapIdle           BootstrapStatus = "idle"
	BootstrapRunning        BootstrapStatus = "running"
	BootstrapStopped        BootstrapStatus = "stopped"
	BootstrapDone           BootstrapStatus = "done"
	BootstrapDoneWithErrors BootstrapStatus = "done_with_errors"
)

// SyncState is the single-row (id=1) sync cursor persisted by the store.
type SyncState struct {
	LastSymbolsSyncAt      string          `json:"last_symbols_sync_at"`
	LastIncrementalSyncAt  string          `json:"last_incremental_sync_at"`
	LastBackfillSyncAt     string          `json:"last_backfill_sync_at"`
	LastFinalizedTradeDate string          `json:"last_finalized_trade_date"`
	BootstrapCursorSymbol  string          `json:"bootstrap_cursor_symbol"`
	BootstrapStatus        BootstrapStatus `json:"bootstrap_status"`
	LastError              string          `json:"last_error"`
	UpdatedAt              string          `json:"updated_at"`
}

// SyncResult is the return envelope of every public Sync Service method.
type SyncResult struct {
	Message          string   `json:"message,omitempty"`
	ProviderUsed     string   `json:"provider_used,omitempty"`
	StartDate        string   `json:"start_date,omitempty"`
	EndDate          string   `json:"end_date,omitempty"`
	FailedProviders  []string `json:"failed_providers,omitempty"`
	Upserted         int      `json:"upserted"`
	Errors           int      `json:"errors"`
	Skipped          int      `json:"skipped"`
	Symbols          int      `json:"symbols"`
	Success          bool     `json:"success"`
	TodayFinal       bool     `json:"today_final"`
	ProviderSwitched bool     `json:"provider_switched"`
}

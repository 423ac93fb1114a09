// Package providers implements the four market-data vendor adapters
// (Eastmoney-proxy, Tencent, Sina, Pro-API) behind one shared interface, the
// way the originating codebase's Yahoo client wraps one vendor behind a
// typed Go client: a pooled *http.Client, a scoped zerolog logger, and small
// helpers that read vendor JSON payloads without a dataframe dependency.
package providers

import (
	"context"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

// Name identifies one of the four concrete vendor adapters.
type Name string

const (
	Eastmoney Name = "eastmoney"
	Tencent   Name = "tencent"
	Sina      Name = "sina"
	ProAPI    Name = "pro_api"
)

// Provider is the contract every adapter implements. Market support varies:
// Eastmoney and Pro-API cover {SH, SZ, BJ}; Tencent and Sina cover only
// {SH, SZ} and must return an empty list (never an error) when asked for an
// unsupported market; routing is responsible for not calling them at all
// for BJ symbols.
type Provider interface {
	Name() Name
	SupportsMarket(market domain.Market) bool
	FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error)
	FetchStockHistory(ctx context.Context, stockCode, startDate, endDate, adjust string) ([]domain.DailyPriceRow, error)
	FetchIndexHistory(ctx context.Context, startDate, endDate string) ([]domain.DailyPriceRow, error)
}

// RealtimeProvider is implemented by adapters that can serve a realtime
// quote path directly (all four can, but only Pro-API exposes the extra
// multi-endpoint sequence below).
type RealtimeProvider interface {
	Provider
	FetchRealtimeQuote(ctx context.Context, stockCode string) (*domain.RealtimeQuote, error)
}

// DailyByDateProvider is implemented only by the Pro-API adapter: one call
// returns every A-share bar for a single trade date.
type DailyByDateProvider interface {
	Provider
	FetchDailyByDate(ctx context.Context, tradeDate string) ([]domain.DailyPriceRow, error)
	FetchRealtimeIntraday(ctx context.Context, stockCode string) (*domain.DailyPriceRow, error)
}

// roundChangePct rounds a derived change-percent to 4 decimals, matching the
// Provider Adapter's change-percent derivation rule.
func roundChangePct(pct float64) float64 {
	scaled := pct * 10000
	if scaled >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	return float64(int64(scaled)) / 10000
}

// DeriveChangePct computes (close-prevClose)/prevClose*100 rounded to 4
// decimals. Returns nil if prevClose is zero or missing, for vendors that
// only supply open/close and leave change-percent to be derived.
func DeriveChangePct(close float64, prevClose *float64) *float64 {
	if prevClose == nil || *prevClose == 0 {
		return nil
	}
	pct := roundChangePct((close - *prevClose) / *prevClose * 100)
	return &pct
}

func marketSupportsAll(market domain.Market) bool {
	switch market {
	case domain.MarketSH, domain.MarketSZ, domain.MarketBJ:
		return true
	default:
		return false
	}
}

func marketSupportsSHSZOnly(market domain.Market) bool {
	switch market {
	case domain.MarketSH, domain.MarketSZ:
		return true
	default:
		return false
	}
}

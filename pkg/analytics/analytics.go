// Package analytics computes the two derived series the read-only HTTP
// facade exposes on top of stored daily bars: simple moving average and
// annualized volatility. Adapted from the originating codebase's
// pkg/formulas package, which wraps go-talib and gonum.org/v1/gonum/stat
// the same way for its own scoring indicators.
package analytics

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// SMA computes the simple moving average of closes over period, returning
// the full aligned series (NaN-prefixed) go-talib produces, trimmed to the
// first non-NaN value.
func SMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	raw := talib.Sma(closes, period)
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if isNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// LatestSMA returns only the most recent SMA value, or nil if there isn't
// enough history for one full window.
func LatestSMA(closes []float64, period int) *float64 {
	series := SMA(closes, period)
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}

// DailyReturns converts a close-price series into day-over-day fractional
// returns ((c[i]-c[i-1])/c[i-1], not multiplied by 100), skipping any step
// whose previous close is zero; AnnualizedVolatility uses this series.
func DailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

// AnnualizedVolatility computes stddev(dailyReturns) * sqrt(tradingDaysPerYear).
func AnnualizedVolatility(closes []float64) float64 {
	returns := DailyReturns(closes)
	if len(returns) == 0 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(252)
}

func isNaN(f float64) bool {
	return f != f
}

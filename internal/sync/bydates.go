package sync

import (
	"context"
	"fmt"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providers"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// ByDatesOptions parameterizes SyncDailyByDates.
type ByDatesOptions struct {
	Start, End string
	// Symbols restricts each day's bulk fetch to this set; empty means keep
	// every row the vendor returns.
	Symbols      []string
	IncludeIndex bool
}

// SyncDailyByDates prewarms a calendar-day range one day at a time via the
// Pro-API adapter's bulk endpoint, a faster path than per-symbol failover
// when a concrete symbol set is already known (e.g. catching up a fixed
// watchlist after an outage): this mode turns ~N_symbols vendor calls into
// ~N_trading_days calls. It requires Pro-API to be routable; every date is
// attempted independently and a single day's failure never aborts the rest.
func (s *Service) SyncDailyByDates(ctx context.Context, opts ByDatesOptions) (domain.SyncResult, error) {
	if !s.cfg.Enabled {
		return domain.SyncResult{Success: true, Message: "market_data disabled"}, nil
	}

	result := domain.SyncResult{Success: true, StartDate: opts.Start, EndDate: opts.End}

	proAPI, hasProAPI := s.catalog[providers.ProAPI].(providers.DailyByDateProvider)
	if !hasProAPI {
		result.Success = false
		result.Message = "sync_daily_by_dates requires the pro_api adapter"
		return result, fmt.Errorf("sync_daily_by_dates: pro_api adapter unavailable")
	}

	wanted := make(map[string]bool, len(opts.Symbols))
	for _, code := range opts.Symbols {
		wanted[domain.NormalizeCode(code)] = true
	}

	yesterday := timeutil.FormatDate(timeutil.NowBeijing().AddDate(0, 0, -1))
	end := opts.End
	if end > yesterday {
		end = yesterday
	}

	for _, date := range timeutil.DateRange(opts.Start, end) {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if reason := s.disabledReason(providers.ProAPI); reason != "" {
			s.recordSkipFailure(providers.ProAPI, "fetch_daily_by_date")
			result.Errors++
			continue
		}

		var rows []domain.DailyPriceRow
		err := s.withRetry(ctx, providers.ProAPI, func(ctx context.Context) error {
			r, e := proAPI.FetchDailyByDate(ctx, date)
			rows = r
			return e
		})
		if err != nil {
			s.openCircuit(providers.ProAPI)
			s.health.RecordFailure(string(providers.ProAPI), "fetch_daily_by_date", classifyFailureReason(err))
			result.Errors++
			s.log.Warn().Err(err).Str("trade_date", date).Msg("fetch_daily_by_date failed; skipping day")
			continue
		}
		if len(rows) == 0 {
			continue
		}

		tagged := make([]domain.DailyPriceRow, 0, len(rows))
		for _, row := range rows {
			if len(wanted) > 0 && !wanted[row.StockCode] {
				continue
			}
			row.IsFinal = true
			tagged = append(tagged, row)
		}
		if len(tagged) == 0 {
			continue
		}
		upserted, uerr := s.store.UpsertDailyPrices(ctx, tagged)
		if uerr != nil {
			result.Errors++
			continue
		}
		result.Upserted += upserted
		result.Symbols += len(tagged)
		result.ProviderUsed = string(providers.ProAPI)
	}

	if opts.IncludeIndex {
		failover, ferr := s.fetchIndexFailover(ctx, opts.Start, end)
		if ferr != nil {
			result.Errors++
			result.FailedProviders = append(result.FailedProviders, failover.failedProviders...)
		} else if !failover.empty {
			rows := make([]domain.DailyPriceRow, 0, len(failover.rows))
			for _, row := range failover.rows {
				row.IsFinal = true
				rows = append(rows, row)
			}
			if upserted, uerr := s.store.UpsertDailyPrices(ctx, rows); uerr == nil {
				result.Upserted += upserted
			}
		}
	}

	if result.Upserted == 0 && result.Errors > 0 {
		result.Success = false
	}
	return result, nil
}

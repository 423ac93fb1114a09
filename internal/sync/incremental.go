package sync

import (
	"context"
	"fmt"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// IncrementalOptions parameterizes SyncDailyIncremental.
type IncrementalOptions struct {
	Symbols       []string
	HistoryDays   int
	SyncEquities  bool
	IncludeIndex  bool
	FinalizeToday bool
}

// SyncDailyIncremental fetches the last HistoryDays of bars for every
// requested symbol (plus the HS300 benchmark, if requested), writing each
// symbol's window through the finality ratchet. A symbol under an active
// cooldown is skipped without counting as an error. If SyncEquities is set
// and no symbol list was given, an empty symbol dictionary triggers a
// SyncSymbols call first; that call's failure aborts with success=false
// before any history fetch is attempted. A symbol's terminal failure
// (every provider failed) puts that symbol on cooldown, records
// last_error in sync_state, and ends the run at once with success=false;
// the remaining symbols and the benchmark are not fetched.
func (s *Service) SyncDailyIncremental(ctx context.Context, opts IncrementalOptions) (domain.SyncResult, error) {
	if !s.cfg.Enabled {
		return domain.SyncResult{Success: true, Message: "market_data disabled"}, nil
	}

	historyDays := opts.HistoryDays
	if historyDays <= 0 {
		historyDays = s.cfg.IncrementalHistoryDays
	}
	start, end := windowFor(historyDays)

	todayFinal := opts.FinalizeToday && timeutil.IsMarketClosedNow(s.cfg.CloseFinalizeTime)
	today := timeutil.TodayBeijing()

	codes := opts.Symbols
	if len(codes) == 0 && opts.SyncEquities {
		var err error
		codes, err = s.store.ListSymbolCodes(ctx)
		if err != nil {
			return domain.SyncResult{Success: false, Message: err.Error()}, fmt.Errorf("sync_daily_incremental: list symbols: %w", err)
		}
		if len(codes) == 0 {
			syncRes, syncErr := s.SyncSymbols(ctx)
			if syncErr != nil || !syncRes.Success {
				msg := fmt.Sprintf("sync_symbols failed before incremental: %s", syncRes.Message)
				return domain.SyncResult{
					Success:          false,
					Message:          msg,
					ProviderUsed:     syncRes.ProviderUsed,
					ProviderSwitched: syncRes.ProviderSwitched,
					FailedProviders:  syncRes.FailedProviders,
				}, fmt.Errorf("sync_daily_incremental: %s", msg)
			}
			codes, err = s.store.ListSymbolCodes(ctx)
			if err != nil {
				return domain.SyncResult{Success: false, Message: err.Error()}, fmt.Errorf("sync_daily_incremental: list symbols: %w", err)
			}
		}
	}

	result := domain.SyncResult{StartDate: start, EndDate: end, TodayFinal: todayFinal, Success: true}

	for _, code := range codes {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if s.isCoolingDown(code) {
			result.Skipped++
			continue
		}

		failover, err := s.fetchHistoryFailover(ctx, code, start, end, s.cfg.Adjust)
		if err != nil {
			result.Errors++
			result.Success = false
			result.Message = err.Error()
			result.FailedProviders = append(result.FailedProviders, failover.failedProviders...)
			s.markCooldown(code)
			now := timeutil.FormatDateTime(timeutil.NowBeijing())
			lastErr := err.Error()
			if updErr := s.store.UpdateSyncState(ctx, store.SyncStateUpdate{LastIncrementalSyncAt: &now, LastError: &lastErr}); updErr != nil {
				s.log.Warn().Err(updErr).Msg("update sync state after incremental sync failure")
			}
			return result, nil
		}
		if failover.empty {
			result.Skipped++
			continue
		}

		rows := make([]domain.DailyPriceRow, 0, len(failover.rows))
		for _, row := range failover.rows {
			rows = append(rows, tagFinality(row, today, todayFinal))
		}
		upserted, err := s.store.UpsertDailyPrices(ctx, rows)
		if err != nil {
			result.Errors++
			continue
		}
		result.Upserted += upserted
		result.Symbols++
		if failover.switched {
			result.ProviderSwitched = true
		}
		result.ProviderUsed = failover.providerUsed
		s.clearCooldown(code)
	}

	if opts.IncludeIndex {
		s.syncIndexWindow(ctx, start, end, today, todayFinal, &result)
	}

	now := timeutil.FormatDateTime(timeutil.NowBeijing())
	update := store.SyncStateUpdate{LastIncrementalSyncAt: &now}
	if todayFinal {
		finalDate := today
		update.LastFinalizedTradeDate = &finalDate
	}
	if err := s.store.UpdateSyncState(ctx, update); err != nil {
		s.log.Warn().Err(err).Msg("update sync state after incremental sync")
	}

	if result.Symbols == 0 && result.Errors > 0 {
		result.Success = false
	}
	return result, nil
}

// syncIndexWindow fetches and upserts the HS300 benchmark's window,
// recording failures into result without aborting the caller's loop.
func (s *Service) syncIndexWindow(ctx context.Context, start, end, today string, todayFinal bool, result *domain.SyncResult) {
	failover, err := s.fetchIndexFailover(ctx, start, end)
	if err != nil {
		result.Errors++
		result.FailedProviders = append(result.FailedProviders, failover.failedProviders...)
		return
	}
	if failover.empty {
		return
	}
	rows := make([]domain.DailyPriceRow, 0, len(failover.rows))
	for _, row := range failover.rows {
		rows = append(rows, tagFinality(row, today, todayFinal))
	}
	upserted, err := s.store.UpsertDailyPrices(ctx, rows)
	if err != nil {
		result.Errors++
		return
	}
	result.Upserted += upserted
}

// FinalizeTodayAfterClose re-runs the incremental sync for equities and the
// benchmark with finalization requested, the post-close cleanup pass that
// converts the day's provisional bars into the permanent record. Today's
// bars are written final only once the Beijing clock is at or past
// close_finalize_time; before that they stay provisional.
func (s *Service) FinalizeTodayAfterClose(ctx context.Context) (domain.SyncResult, error) {
	return s.SyncDailyIncremental(ctx, IncrementalOptions{
		SyncEquities:  true,
		IncludeIndex:  true,
		HistoryDays:   2,
		FinalizeToday: true,
	})
}

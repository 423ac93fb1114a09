package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// backfillStartDate bounds full-history backfill to the era Chinese A-share
// electronic trading data is reliably available from.
const backfillStartDate = "1990-01-01"

// BackfillOptions parameterizes BackfillHistoryFull.
type BackfillOptions struct {
	// Resume continues from sync_state.bootstrap_cursor_symbol when true; a
	// fresh run (Resume=false) always starts at the first symbol.
	Resume bool
	// BatchSize overrides cfg.BootstrapBatchSize's progress-log cadence.
	// It does not cap how many symbols one call processes: the loop walks
	// every remaining symbol and stops only on StopChecker, ctx
	// cancellation, or the list running out. Zero uses the configured
	// default.
	BatchSize int
	// SymbolLimit truncates the symbol list (after sorting) to at most this
	// many entries; zero means no limit.
	SymbolLimit int
	// StopChecker is polled once per symbol; a true return breaks the loop
	// cooperatively, persisting as the cursor the last symbol processed
	// before the stop.
	StopChecker func() bool
	// ProgressEvery overrides the progress-log cadence; zero uses BatchSize.
	ProgressEvery int
}

// BackfillHistoryFull resumes (or restarts) a full-history backfill,
// walking every remaining symbol in one call and relying on StopChecker
// (polled once per symbol) for a caller that wants to drive it
// incrementally, e.g. one call per scheduler tick that stops after a time
// budget rather than a fixed symbol count. Unlike incremental sync, a
// single symbol's terminal failure never aborts the run: bootstrap is
// expected to run unattended over many symbols and must make forward
// progress around individual bad symbols. If no symbols are known yet,
// SyncSymbols is invoked first; its failure aborts the backfill with
// success=false before any history fetch is attempted.
func (s *Service) BackfillHistoryFull(ctx context.Context, opts BackfillOptions) (domain.SyncResult, error) {
	if !s.cfg.Enabled {
		return domain.SyncResult{Success: true, Message: "market_data disabled"}, nil
	}

	state, err := s.store.GetSyncState(ctx)
	if err != nil {
		return domain.SyncResult{Success: false, Message: err.Error()}, fmt.Errorf("backfill_history_full: get sync state: %w", err)
	}

	codes, err := s.store.ListSymbolCodes(ctx)
	if err != nil {
		return domain.SyncResult{Success: false, Message: err.Error()}, fmt.Errorf("backfill_history_full: list symbols: %w", err)
	}
	if len(codes) == 0 {
		syncRes, syncErr := s.SyncSymbols(ctx)
		if syncErr != nil || !syncRes.Success {
			msg := fmt.Sprintf("sync_symbols failed before bootstrap: %s", syncRes.Message)
			return domain.SyncResult{Success: false, Message: msg, FailedProviders: syncRes.FailedProviders}, fmt.Errorf("backfill_history_full: %s", msg)
		}
		codes, err = s.store.ListSymbolCodes(ctx)
		if err != nil {
			return domain.SyncResult{Success: false, Message: err.Error()}, fmt.Errorf("backfill_history_full: list symbols: %w", err)
		}
	}
	sort.Strings(codes)
	if opts.SymbolLimit > 0 && opts.SymbolLimit < len(codes) {
		codes = codes[:opts.SymbolLimit]
	}

	startIdx := 0
	if opts.Resume && state.BootstrapCursorSymbol != "" {
		for i, code := range codes {
			if code > state.BootstrapCursorSymbol {
				startIdx = i
				break
			}
			startIdx = i + 1
		}
	}

	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = opts.BatchSize
	}
	if progressEvery <= 0 {
		progressEvery = s.cfg.BootstrapBatchSize
	}
	if progressEvery <= 0 {
		progressEvery = 200
	}
	remaining := codes[startIdx:]

	running := domain.BootstrapRunning
	if err := s.store.UpdateSyncState(ctx, store.SyncStateUpdate{BootstrapStatus: &running}); err != nil {
		s.log.Warn().Err(err).Msg("mark bootstrap running")
	}

	today := timeutil.TodayBeijing()
	end := today
	result := domain.SyncResult{Success: true, StartDate: backfillStartDate, EndDate: end}
	var cursor string
	stopped := false
	processed := 0

	for i, code := range remaining {
		if opts.StopChecker != nil && opts.StopChecker() {
			stopped = true
			break
		}
		select {
		case <-ctx.Done():
			stopped = true
		default:
		}
		if stopped {
			break
		}

		failover, ferr := s.fetchHistoryFailover(ctx, code, backfillStartDate, end, s.cfg.Adjust)
		cursor = code
		processed++
		if ferr != nil {
			result.Errors++
			result.FailedProviders = append(result.FailedProviders, failover.failedProviders...)
			msg := fmt.Sprintf("backfill %s: %v", code, ferr)
			if uerr := s.store.UpdateSyncState(ctx, store.SyncStateUpdate{LastError: &msg}); uerr != nil {
				s.log.Warn().Err(uerr).Msg("record backfill symbol error")
			}
		} else if !failover.empty {
			rows := make([]domain.DailyPriceRow, 0, len(failover.rows))
			for _, row := range failover.rows {
				rows = append(rows, tagFinality(row, today, false))
			}
			upserted, uerr := s.store.UpsertDailyPrices(ctx, rows)
			if uerr != nil {
				result.Errors++
			} else {
				result.Upserted += upserted
				result.Symbols++
				if failover.switched {
					result.ProviderSwitched = true
				}
			}
		}

		if (i+1)%progressEvery == 0 || i == len(remaining)-1 {
			s.log.Info().Int("done", startIdx+i+1).Int("total", len(codes)).Str("cursor", cursor).Msg("backfill progress")
		}
	}

	completed := !stopped
	status := domain.BootstrapRunning
	switch {
	case stopped:
		status = domain.BootstrapStopped
	case completed:
		if result.Errors > 0 {
			status = domain.BootstrapDoneWithErrors
		} else {
			status = domain.BootstrapDone
		}
		cursor = ""
	}

	if completed {
		failover, ferr := s.fetchIndexFailover(ctx, backfillStartDate, end)
		if ferr != nil {
			result.Errors++
			result.FailedProviders = append(result.FailedProviders, failover.failedProviders...)
		} else if !failover.empty {
			rows := make([]domain.DailyPriceRow, 0, len(failover.rows))
			for _, row := range failover.rows {
				rows = append(rows, tagFinality(row, today, false))
			}
			if upserted, uerr := s.store.UpsertDailyPrices(ctx, rows); uerr == nil {
				result.Upserted += upserted
			}
		}
	}

	s.persistBackfillProgress(ctx, cursor, status, &result)
	result.Message = fmt.Sprintf("processed %d/%d symbols (status=%s)", startIdx+processed, len(codes), status)
	if stopped {
		result.Success = true
	}
	return result, nil
}

func (s *Service) persistBackfillProgress(ctx context.Context, cursor string, status domain.BootstrapStatus, result *domain.SyncResult) {
	now := timeutil.FormatDateTime(timeutil.NowBeijing())
	update := store.SyncStateUpdate{
		BootstrapCursorSymbol: &cursor,
		BootstrapStatus:       &status,
		LastBackfillSyncAt:    &now,
	}
	if result.Errors > 0 {
		msg := fmt.Sprintf("%d symbol(s) failed in last backfill batch", result.Errors)
		update.LastError = &msg
	}
	if err := s.store.UpdateSyncState(ctx, update); err != nil {
		s.log.Warn().Err(err).Msg("persist backfill progress")
	}
}

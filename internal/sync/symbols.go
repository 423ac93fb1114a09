package sync

import (
	"context"
	"fmt"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// SyncSymbols refreshes the symbol dictionary from the first routable
// provider in the configured order that returns a non-empty listing (only
// Eastmoney and Pro-API implement FetchSymbols; Tencent and Sina always
// return an empty slice).
func (s *Service) SyncSymbols(ctx context.Context) (domain.SyncResult, error) {
	if !s.cfg.Enabled {
		return domain.SyncResult{Success: true, Message: "market_data disabled"}, nil
	}

	order := dedupeProviders(s.cfg.Providers)
	var failed []string

	for _, name := range order {
		if reason := s.disabledReason(name); reason != "" {
			s.recordSkipFailure(name, "fetch_symbols")
			failed = append(failed, string(name))
			continue
		}
		provider, ok := s.catalog[name]
		if !ok {
			failed = append(failed, string(name))
			continue
		}
		var rows []domain.SymbolRow
		err := s.withRetry(ctx, name, func(ctx context.Context) error {
			r, e := provider.FetchSymbols(ctx)
			rows = r
			return e
		})
		if err != nil {
			s.openCircuit(name)
			s.health.RecordFailure(string(name), "fetch_symbols", classifyFailureReason(err))
			failed = append(failed, string(name))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		count, err := s.store.UpsertSymbols(ctx, rows)
		if err != nil {
			return domain.SyncResult{Success: false, Errors: 1, Message: err.Error()}, err
		}
		now := timeutil.FormatDateTime(timeutil.NowBeijing())
		if err := s.store.UpdateSyncState(ctx, store.SyncStateUpdate{LastSymbolsSyncAt: &now}); err != nil {
			s.log.Warn().Err(err).Msg("update sync state after symbol sync")
		}
		return domain.SyncResult{
			Success:      true,
			Symbols:      count,
			ProviderUsed: string(name),
			Message:      fmt.Sprintf("synced %d symbols from %s", count, name),
		}, nil
	}

	return domain.SyncResult{
		Success:         false,
		FailedProviders: failed,
		Message:         "no provider returned a non-empty symbol listing",
	}, fmt.Errorf("sync_symbols: all providers failed or returned empty, failed=%v", failed)
}

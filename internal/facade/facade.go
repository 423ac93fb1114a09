// Package facade implements the Public Facade: the single entry point other
// in-process callers (a scheduler, a CLI command, the HTTP server's write
// paths) use to drive the Sync Service and inspect its state, the way the
// originating codebase's module-level service objects present one
// call-surface per subsystem rather than letting callers reach into the
// store or the provider catalog directly.
package facade

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/config"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	marketsync "github.com/YOUSOYOUSO/zsxq-market-data/internal/sync"
)

// Facade is the Public Facade. It owns no state of its own beyond what it
// was constructed with; every call delegates to the store, the Sync
// Service, or the health registry.
type Facade struct {
	cfg    *config.Config
	store  *store.Store
	sync   *marketsync.Service
	health *providerhealth.Registry
	log    zerolog.Logger
}

// New constructs the Public Facade over an already-wired Sync Service.
func New(cfg *config.Config, st *store.Store, syncSvc *marketsync.Service, health *providerhealth.Registry, log zerolog.Logger) *Facade {
	return &Facade{
		cfg:    cfg,
		store:  st,
		sync:   syncSvc,
		health: health,
		log:    log.With().Str("component", "facade").Logger(),
	}
}

// StatusReport is the return envelope of Status.
type StatusReport struct {
	SyncState domain.SyncState                   `json:"sync_state"`
	Providers []providerhealth.ProviderSnapshot `json:"providers"`
	DBPath    string                             `json:"db_path"`
	Enabled   bool                               `json:"enabled"`
}

// Status reports the current sync cursor and provider routability, the
// read path behind the HTTP facade's /status route.
func (f *Facade) Status(ctx context.Context) (StatusReport, error) {
	state, err := f.store.GetSyncState(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("facade status: %w", err)
	}
	return StatusReport{
		SyncState: state,
		Providers: f.health.Snapshot(f.cfg.Providers),
		DBPath:    f.store.Path(),
		Enabled:   f.cfg.Enabled,
	}, nil
}

// Probe runs the store's integrity check, the read path behind the HTTP
// facade's /healthz route.
func (f *Facade) Probe(ctx context.Context) error {
	if !f.cfg.Enabled {
		return nil
	}
	return f.store.HealthCheck(ctx)
}

// UpdateSettings applies a partial runtime settings change: retry/backoff,
// circuit-breaker duration, symbol cooldown, failover toggles, the
// incremental window size, the bootstrap batch size, or the close-finalize
// threshold, without restarting the process. It never rebuilds the
// provider catalog or reopens the store, so provider lists, the adjustment
// regime, and the database path stay fixed for the process lifetime.
func (f *Facade) UpdateSettings(update config.RuntimeUpdate) {
	f.cfg.ApplyRuntimeUpdate(update)
}

// SyncSymbols refreshes the symbol dictionary.
func (f *Facade) SyncSymbols(ctx context.Context) (domain.SyncResult, error) {
	return f.sync.SyncSymbols(ctx)
}

// SyncIncremental runs the incremental window sync for every known symbol
// plus the benchmark.
func (f *Facade) SyncIncremental(ctx context.Context, finalizeToday bool) (domain.SyncResult, error) {
	return f.sync.SyncDailyIncremental(ctx, marketsync.IncrementalOptions{
		SyncEquities:  true,
		IncludeIndex:  true,
		HistoryDays:   f.cfg.IncrementalHistoryDays,
		FinalizeToday: finalizeToday,
	})
}

// SyncByDates prewarms a calendar-day range for a fixed symbol watchlist via
// the Pro-API bulk-by-date path.
func (f *Facade) SyncByDates(ctx context.Context, start, end string, symbols []string) (domain.SyncResult, error) {
	return f.sync.SyncDailyByDates(ctx, marketsync.ByDatesOptions{
		Start:        start,
		End:          end,
		Symbols:      symbols,
		IncludeIndex: true,
	})
}

// BackfillHistory runs the full-history backfill from the persisted cursor
// over every remaining symbol, until stopChecker returns true, ctx is
// cancelled, or the symbol list runs out.
func (f *Facade) BackfillHistory(ctx context.Context, stopChecker func() bool) (domain.SyncResult, error) {
	return f.sync.BackfillHistoryFull(ctx, marketsync.BackfillOptions{
		Resume:      true,
		BatchSize:   f.cfg.BootstrapBatchSize,
		StopChecker: stopChecker,
	})
}

// FinalizeToday re-runs the incremental sync with finalization requested;
// today's bars become final only at or after close_finalize_time.
func (f *Facade) FinalizeToday(ctx context.Context) (domain.SyncResult, error) {
	return f.sync.FinalizeTodayAfterClose(ctx)
}

// ResetBackfill clears the bootstrap cursor so a stopped backfill can be
// retried from the beginning.
func (f *Facade) ResetBackfill(ctx context.Context) error {
	return f.store.ResetBootstrapCursor(ctx)
}

// RealtimeQuote fetches a single symbol's live price.
func (f *Facade) RealtimeQuote(ctx context.Context, stockCode string) (domain.RealtimeQuote, error) {
	return f.sync.FetchRealtimePrice(ctx, stockCode)
}

// PriceHistory returns stored bars for code in [start, end].
func (f *Facade) PriceHistory(ctx context.Context, code, start, end string, allowTodayUnfinal bool) ([]domain.DailyPriceRow, error) {
	return f.store.GetPriceRange(ctx, domain.NormalizeCode(code), start, end, allowTodayUnfinal)
}

// LatestPrice returns the most recent stored bar for code, or nil if none exists.
func (f *Facade) LatestPrice(ctx context.Context, code string) (*domain.DailyPriceRow, error) {
	code = domain.NormalizeCode(code)
	latestDate, err := f.store.GetLatestTradeDateForSymbol(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("facade latest price: %w", err)
	}
	if latestDate == "" {
		return nil, nil
	}
	rows, err := f.store.GetPriceRange(ctx, code, latestDate, latestDate, true)
	if err != nil {
		return nil, fmt.Errorf("facade latest price: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

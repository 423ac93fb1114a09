// Package sync implements the Sync Service: the retry/failover core and
// the five ingestion operations (symbol sync, incremental window sync,
// batch-by-date prewarm, full-history backfill, realtime quotes) that sit
// between the Provider Adapter Set and the Persistent Bar Store. It is the
// orchestration heart of the module, the way the originating codebase's
// sync-cycle services compose retry, failover, and store writes into one
// call.
package sync

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/config"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providers"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// Service is the Sync Service. One instance owns a provider catalog, its
// own per-provider mutex/circuit maps, and a per-symbol cooldown map; the
// Provider Health Registry it's constructed with may be shared process-wide
// (providerhealth.Global()) or private to a test.
type Service struct {
	store   *store.Store
	catalog map[providers.Name]providers.Provider
	cfg     *config.Config
	health  *providerhealth.Registry
	log     zerolog.Logger

	providerMuMu sync.Mutex
	providerMus  map[providers.Name]*sync.Mutex

	cooldownMu    sync.Mutex
	cooldownUntil map[string]time.Time
}

// New constructs a Sync Service over an already-open store and an
// already-built provider catalog (see providers.BuildCatalog).
func New(cfg *config.Config, st *store.Store, catalog map[providers.Name]providers.Provider, health *providerhealth.Registry, log zerolog.Logger) *Service {
	return &Service{
		store:         st,
		catalog:       catalog,
		cfg:           cfg,
		health:        health,
		log:           log.With().Str("component", "sync_service").Logger(),
		providerMus:   make(map[providers.Name]*sync.Mutex),
		cooldownUntil: make(map[string]time.Time),
	}
}

var defaultProviderOrder = []providers.Name{providers.Eastmoney, providers.Tencent, providers.Sina, providers.ProAPI}

// fastFailMarkers are error-message substrings that bypass the retry loop:
// the underlying transport is already gone, or the vendor has explicitly
// rate-limited us, so a second attempt within the same call would be
// pointless hammering.
var fastFailMarkers = []string{
	"RemoteDisconnected",
	"Connection aborted",
	"Connection reset",
	"Remote end closed",
	"每分钟最多",
	"每小时最多",
	"每天最多",
	"访问频率",
	"请求过于频繁",
}

func isFastFail(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range fastFailMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// providerMutex lazily creates the mutex that serializes all vendor calls
// for one provider name.
func (s *Service) providerMutex(name providers.Name) *sync.Mutex {
	s.providerMuMu.Lock()
	defer s.providerMuMu.Unlock()
	mu, ok := s.providerMus[name]
	if !ok {
		mu = &sync.Mutex{}
		s.providerMus[name] = mu
	}
	return mu
}

// withRetry runs fn under the provider's mutex, making up to
// sync_retry_max attempts in total with doubling backoff, short-circuiting on a
// fast-fail error or on ctx cancellation.
func (s *Service) withRetry(ctx context.Context, name providers.Name, fn func(ctx context.Context) error) error {
	mu := s.providerMutex(name)
	mu.Lock()
	defer mu.Unlock()

	retryMax := s.cfg.SyncRetryMax
	if retryMax < 1 {
		retryMax = 1
	}
	backoff := s.cfg.SyncRetryBackoffSeconds

	var lastErr error
	for attempt := 1; attempt <= retryMax; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isFastFail(err) {
			return err
		}
		if attempt == retryMax {
			return err
		}
		sleepFor := time.Duration(backoff*math.Pow(2, float64(attempt-1))) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
	return lastErr
}

// openCircuit marks name non-routable for provider_circuit_breaker_seconds,
// mirrored into the (possibly process-global) health registry.
func (s *Service) openCircuit(name providers.Name) {
	seconds := s.cfg.ProviderCircuitBreakerSeconds
	if seconds <= 0 {
		seconds = 300
	}
	until := time.Now().Add(time.Duration(seconds * float64(time.Second)))
	reason := fmt.Sprintf("circuit_open:%.0fs", seconds)
	s.health.SetDisabled(string(name), reason, until)
}

// disabledReason reports why name is currently non-routable, or "" if it
// is routable. Delegates to the health registry, which auto-clears expired
// entries, so this single call covers circuit-open, init_failed, and any
// other provider disabled elsewhere in the process.
func (s *Service) disabledReason(name providers.Name) string {
	return s.health.GetDisabledReason(string(name))
}

// recordSkipFailure tallies a failure for a provider that was skipped
// because it was already disabled, tagging the reason as
// "provider_unavailable:<reason>" for anything that isn't already a
// circuit_open marker.
func (s *Service) recordSkipFailure(name providers.Name, op string) {
	reason := s.disabledReason(name)
	if !strings.HasPrefix(reason, "circuit_open") {
		reason = "provider_unavailable:" + reason
	}
	s.health.RecordFailure(string(name), op, reason)
}

func classifyFailureReason(err error) string {
	if isFastFail(err) {
		return "rate_limited:" + truncate(err.Error(), 80)
	}
	return "transport_error:" + truncate(err.Error(), 80)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// dedupeProviders preserves first-occurrence order, falling back to
// defaultProviderOrder when names is empty.
func dedupeProviders(names []string) []providers.Name {
	seen := make(map[providers.Name]bool, len(names))
	out := make([]providers.Name, 0, len(names))
	for _, raw := range names {
		name := providers.Name(raw)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return append([]providers.Name{}, defaultProviderOrder...)
	}
	return out
}

// providerOrderFor builds the ordered candidate list for one request: BJ
// symbols move {pro_api, eastmoney} to the front and drop tencent/sina
// entirely (recording market_unsupported:BJ), since routing must not even
// attempt a call those adapters can't serve.
func (s *Service) providerOrderFor(base []providers.Name, market domain.Market, op string) []providers.Name {
	if market != domain.MarketBJ {
		return base
	}
	var front, rest []providers.Name
	for _, name := range []providers.Name{providers.ProAPI, providers.Eastmoney} {
		if contains(base, name) {
			front = append(front, name)
		}
	}
	for _, name := range base {
		switch name {
		case providers.ProAPI, providers.Eastmoney:
			continue
		case providers.Tencent, providers.Sina:
			s.health.SetDisabled(string(name), "market_unsupported:BJ", time.Now().Add(time.Duration(s.cfg.ProviderCircuitBreakerSeconds*float64(time.Second))))
			s.health.RecordFailure(string(name), op, "market_unsupported:BJ")
		default:
			rest = append(rest, name)
		}
	}
	return append(front, rest...)
}

func contains(names []providers.Name, target providers.Name) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

// isCoolingDown reports whether code is currently suppressed after a
// terminal failure, auto-clearing an expired cooldown entry.
func (s *Service) isCoolingDown(code string) bool {
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	until, ok := s.cooldownUntil[code]
	if !ok {
		return false
	}
	if !time.Now().Before(until) {
		delete(s.cooldownUntil, code)
		return false
	}
	return true
}

func (s *Service) markCooldown(code string) {
	seconds := s.cfg.SyncFailureCooldownSeconds
	if seconds <= 0 {
		seconds = 120
	}
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	s.cooldownUntil[code] = time.Now().Add(time.Duration(seconds * float64(time.Second)))
}

func (s *Service) clearCooldown(code string) {
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	delete(s.cooldownUntil, code)
}

// historyFailoverResult is the sum-typed outcome of one failover loop:
// exactly one of (non-empty rows), (empty=true), or (err != nil) holds.
// This replaces the originating codebase's EmptyHistoryError exception
// with a plain return value per DESIGN.md.
type historyFailoverResult struct {
	rows            []domain.DailyPriceRow
	providerUsed    string
	failedProviders []string
	switched        bool
	empty           bool
}

// runHistoryFailover iterates order, calling call(provider) for each
// routable entry under the retry loop, until one returns non-empty rows.
func (s *Service) runHistoryFailover(ctx context.Context, order []providers.Name, op string, call func(ctx context.Context, p providers.Provider) ([]domain.DailyPriceRow, error)) (historyFailoverResult, error) {
	var result historyFailoverResult
	attempts := 0
	for _, name := range order {
		if reason := s.disabledReason(name); reason != "" {
			s.recordSkipFailure(name, op)
			result.failedProviders = append(result.failedProviders, string(name))
			continue
		}
		provider, ok := s.catalog[name]
		if !ok {
			result.failedProviders = append(result.failedProviders, string(name))
			continue
		}
		attempts++
		var rows []domain.DailyPriceRow
		callErr := s.withRetry(ctx, name, func(ctx context.Context) error {
			r, e := call(ctx, provider)
			rows = r
			return e
		})
		if callErr != nil {
			s.openCircuit(name)
			s.health.RecordFailure(string(name), op, classifyFailureReason(callErr))
			result.failedProviders = append(result.failedProviders, string(name))
			if !s.cfg.ProviderFailoverEnabled {
				break
			}
			continue
		}
		if len(rows) == 0 {
			if !s.cfg.ProviderFailoverEnabled {
				break
			}
			continue
		}
		result.rows = rows
		result.providerUsed = string(name)
		result.switched = attempts > 1
		return result, nil
	}
	if len(result.failedProviders) > 0 {
		return result, fmt.Errorf("all providers failed: %s, failed_providers=%v", op, result.failedProviders)
	}
	result.empty = true
	return result, nil
}

// fetchHistoryFailover runs the failover loop for one symbol's
// fetch_stock_history call, applying BJ routing.
func (s *Service) fetchHistoryFailover(ctx context.Context, code, start, end, adjust string) (historyFailoverResult, error) {
	order := s.providerOrderFor(dedupeProviders(s.cfg.Providers), domain.MarketOf(code), "fetch_stock_history")
	return s.runHistoryFailover(ctx, order, "fetch_stock_history", func(ctx context.Context, p providers.Provider) ([]domain.DailyPriceRow, error) {
		return p.FetchStockHistory(ctx, code, start, end, adjust)
	})
}

// fetchIndexFailover runs the failover loop for the HS300 benchmark, which
// is Shanghai-listed and therefore never subject to BJ routing.
func (s *Service) fetchIndexFailover(ctx context.Context, start, end string) (historyFailoverResult, error) {
	order := dedupeProviders(s.cfg.Providers)
	return s.runHistoryFailover(ctx, order, "fetch_index_history", func(ctx context.Context, p providers.Provider) ([]domain.DailyPriceRow, error) {
		return p.FetchIndexHistory(ctx, start, end)
	})
}

// tagFinality applies the today policy to one row: today's bar is final
// only if todayFinal asserts the market closed; every other date is final.
func tagFinality(row domain.DailyPriceRow, today string, todayFinal bool) domain.DailyPriceRow {
	if row.TradeDate == today {
		row.IsFinal = todayFinal
	} else {
		row.IsFinal = true
	}
	return row
}

// windowFor computes [startDate, endDate] for an N-day lookback ending
// today, flooring N at 2 so a historyDays=1 request still spans two
// calendar days.
func windowFor(historyDays int) (start, end string) {
	if historyDays < 2 {
		historyDays = 2
	}
	endT := timeutil.NowBeijing()
	startT := endT.AddDate(0, 0, -historyDays)
	return timeutil.FormatDate(startT), timeutil.FormatDate(endT)
}

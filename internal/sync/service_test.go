package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/config"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providers"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/store"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// fakeProvider is a scriptable Provider used to drive the failover loop
// through end-to-end scenarios without touching a real vendor.
// historyErr/historyRows key by stock code; an empty string key covers the
// index call.
type fakeProvider struct {
	name        providers.Name
	market      func(domain.Market) bool
	historyErr  map[string]error
	historyRows map[string][]domain.DailyPriceRow
	calls       int
}

func (f *fakeProvider) Name() providers.Name { return f.name }
func (f *fakeProvider) SupportsMarket(m domain.Market) bool {
	if f.market != nil {
		return f.market(m)
	}
	return true
}
func (f *fakeProvider) FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error) { return nil, nil }
func (f *fakeProvider) FetchStockHistory(ctx context.Context, code, start, end, adjust string) ([]domain.DailyPriceRow, error) {
	f.calls++
	if err, ok := f.historyErr[code]; ok {
		return nil, err
	}
	return f.historyRows[code], nil
}
func (f *fakeProvider) FetchIndexHistory(ctx context.Context, start, end string) ([]domain.DailyPriceRow, error) {
	f.calls++
	if err, ok := f.historyErr[""]; ok {
		return nil, err
	}
	return f.historyRows[""], nil
}

func newTestService(t *testing.T, catalog map[providers.Name]providers.Provider) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.ProviderCircuitBreakerSeconds = 300
	cfg.SyncRetryMax = 1
	cfg.SyncRetryBackoffSeconds = 0
	cfg.SyncFailureCooldownSeconds = 120

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, string(name))
	}
	cfg.Providers = names
	cfg.RealtimeProviders = names

	st, err := store.Open(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return New(&cfg, st, catalog, providerhealth.New(), zerolog.Nop())
}

// Scenario 1: failover on disconnect. eastmoney raises a
// fast-fail transport error, pro_api returns one bar; the symbol still
// succeeds via the second provider.
func TestSyncDailyIncremental_FailoverOnDisconnect(t *testing.T) {
	code := "000001.SZ"
	eastmoney := &fakeProvider{
		name:       providers.Eastmoney,
		historyErr: map[string]error{code: errors.New("Connection aborted: RemoteDisconnected")},
	}
	proAPI := &fakeProvider{
		name: providers.ProAPI,
		historyRows: map[string][]domain.DailyPriceRow{
			code: {{StockCode: code, TradeDate: "2024-01-02", Close: 10.5}},
		},
	}
	svc := newTestService(t, map[providers.Name]providers.Provider{
		providers.Eastmoney: eastmoney,
		providers.ProAPI:    proAPI,
	})
	svc.cfg.Providers = []string{"eastmoney", "pro_api"}

	result, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{
		Symbols: []string{code}, HistoryDays: 5,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "pro_api", result.ProviderUsed)
	assert.True(t, result.ProviderSwitched)
	assert.Contains(t, result.FailedProviders, "eastmoney")
	assert.Equal(t, 1, result.Upserted)
}

// Scenario 2: total failure. both providers error for the symbol; the
// incremental sync aborts immediately with success=false and errors=1.
func TestSyncDailyIncremental_TotalFailureAborts(t *testing.T) {
	code := "000001.SZ"
	mkFailing := func(name providers.Name) *fakeProvider {
		return &fakeProvider{name: name, historyErr: map[string]error{code: errors.New("provider unavailable")}}
	}
	svc := newTestService(t, map[providers.Name]providers.Provider{
		providers.Eastmoney: mkFailing(providers.Eastmoney),
		providers.ProAPI:    mkFailing(providers.ProAPI),
	})
	svc.cfg.Providers = []string{"eastmoney", "pro_api"}

	result, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{
		Symbols: []string{code}, HistoryDays: 5,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Errors)
	assert.Contains(t, result.FailedProviders, "eastmoney")
	assert.Contains(t, result.FailedProviders, "pro_api")
}

// Scenario 3: empty is not failure. every provider returns an empty
// window; the symbol counts as skipped, not an error, and the sync still
// succeeds.
func TestSyncDailyIncremental_EmptyWindowIsSkippedNotFailed(t *testing.T) {
	code := "600673.SH"
	empty := func(name providers.Name) *fakeProvider {
		return &fakeProvider{name: name, historyRows: map[string][]domain.DailyPriceRow{code: nil}}
	}
	svc := newTestService(t, map[providers.Name]providers.Provider{
		providers.Eastmoney: empty(providers.Eastmoney),
		providers.ProAPI:    empty(providers.ProAPI),
	})
	svc.cfg.Providers = []string{"eastmoney", "pro_api"}

	result, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{
		Symbols: []string{code}, HistoryDays: 5,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 0, result.Upserted)
	assert.Equal(t, 1, result.Skipped)
}

// Scenario 5: BJ routing. Tencent and Sina never receive a call
// for a BJ-suffixed symbol and the health registry shows why.
func TestProviderOrderFor_ExcludesTencentSinaForBJSymbol(t *testing.T) {
	code := "920368.BJ"
	tencent := &fakeProvider{name: providers.Tencent, market: func(m domain.Market) bool { return m != domain.MarketBJ }}
	sina := &fakeProvider{name: providers.Sina, market: func(m domain.Market) bool { return m != domain.MarketBJ }}
	proAPI := &fakeProvider{
		name: providers.ProAPI,
		historyRows: map[string][]domain.DailyPriceRow{
			code: {{StockCode: code, TradeDate: "2024-01-02", Close: 5.0}},
		},
	}
	svc := newTestService(t, map[providers.Name]providers.Provider{
		providers.Tencent: tencent,
		providers.Sina:    sina,
		providers.ProAPI:  proAPI,
	})
	svc.cfg.Providers = []string{"tencent", "sina", "pro_api"}

	result, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{
		Symbols: []string{code}, HistoryDays: 5,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, tencent.calls, "tencent must never be called for a BJ symbol")
	assert.Equal(t, 0, sina.calls, "sina must never be called for a BJ symbol")

	snapshot := svc.health.Snapshot([]string{"tencent", "sina", "pro_api"})
	byName := make(map[string]providerhealth.ProviderSnapshot, len(snapshot))
	for _, s := range snapshot {
		byName[s.Provider] = s
	}
	assert.False(t, byName["tencent"].Routable)
	assert.Equal(t, "market_unsupported:BJ", byName["tencent"].DisabledReason)
	assert.False(t, byName["sina"].Routable)
	assert.Equal(t, "market_unsupported:BJ", byName["sina"].DisabledReason)
}

// A cooling-down symbol is skipped on a later call without hitting any
// provider, and a terminal failure is what starts the cooldown.
func TestSymbolCooldown_SkipsWithoutCallingProviders(t *testing.T) {
	code := "000001.SZ"
	failing := &fakeProvider{name: providers.Eastmoney, historyErr: map[string]error{code: errors.New("boom")}}
	svc := newTestService(t, map[providers.Name]providers.Provider{providers.Eastmoney: failing})
	svc.cfg.Providers = []string{"eastmoney"}

	first, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{Symbols: []string{code}, HistoryDays: 5})
	require.NoError(t, err)
	assert.False(t, first.Success)
	assert.Equal(t, 1, first.Errors)
	assert.True(t, svc.isCoolingDown(code))

	callsBefore := failing.calls
	second, err := svc.SyncDailyIncremental(context.Background(), IncrementalOptions{Symbols: []string{code}, HistoryDays: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, callsBefore, failing.calls, "cooling-down symbol must not reach the provider")
}

func TestWindowFor_FloorsHistoryDaysAtTwo(t *testing.T) {
	start, end := windowFor(1)
	startT, err := timeutil.ParseDate(start)
	require.NoError(t, err)
	endT, err := timeutil.ParseDate(end)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, endT.Sub(startT).Hours(), 48.0)
}

func TestIsFastFail_MatchesKnownMarkers(t *testing.T) {
	assert.True(t, isFastFail(errors.New("Connection aborted by peer: RemoteDisconnected")))
	assert.True(t, isFastFail(errors.New("每分钟最多访问100次")))
	assert.False(t, isFastFail(errors.New("unexpected EOF")))
	assert.False(t, isFastFail(nil))
}

func TestBackfillHistoryFull_StopCheckerPersistsCursor(t *testing.T) {
	codes := []string{"000001.SZ", "000002.SZ", "000003.SZ"}
	provider := &fakeProvider{name: providers.Eastmoney, historyRows: map[string][]domain.DailyPriceRow{}}
	svc := newTestService(t, map[providers.Name]providers.Provider{providers.Eastmoney: provider})
	svc.cfg.Providers = []string{"eastmoney"}

	ctx := context.Background()
	_, err := svc.store.UpsertSymbols(ctx, []domain.SymbolRow{
		{StockCode: codes[0]}, {StockCode: codes[1]}, {StockCode: codes[2]},
	})
	require.NoError(t, err)

	stopAfter := 1
	seen := 0
	result, err := svc.BackfillHistoryFull(ctx, BackfillOptions{
		Resume:    false,
		BatchSize: len(codes),
		StopChecker: func() bool {
			seen++
			return seen > stopAfter
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	state, err := svc.store.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BootstrapStopped, state.BootstrapStatus)
	assert.NotEmpty(t, state.BootstrapCursorSymbol)
}

func TestSyncSymbols_AllProvidersFailReturnsFailedProviders(t *testing.T) {
	eastmoney := &fakeProvider{name: providers.Eastmoney}
	proAPI := &fakeProvider{name: providers.ProAPI}
	svc := newTestService(t, map[providers.Name]providers.Provider{
		providers.Eastmoney: eastmoney,
		providers.ProAPI:    proAPI,
	})
	svc.cfg.Providers = []string{"eastmoney", "pro_api"}
	svc.health.SetDisabled("eastmoney", "init_failed:boom", time.Now().Add(time.Hour))
	svc.health.SetDisabled("pro_api", "init_failed:boom", time.Now().Add(time.Hour))

	result, err := svc.SyncSymbols(context.Background())
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.ElementsMatch(t, []string{"eastmoney", "pro_api"}, result.FailedProviders)
}

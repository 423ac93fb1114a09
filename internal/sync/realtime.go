package sync

import (
	"context"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providers"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
)

// FetchRealtimePrice returns a single symbol's live quote, trying
// realtime_providers in order (BJ-aware routing applies here too) until one
// yields a non-nil quote with a non-zero price. If every provider fails or
// returns nothing, the result carries success=false and the list of
// providers that were unavailable or returned an error (providers that
// answered with no quote are not listed), rather than an error. A live quote miss is
// an ordinary outcome during closed-market hours, not a fault.
func (s *Service) FetchRealtimePrice(ctx context.Context, stockCode string) (domain.RealtimeQuote, error) {
	code := domain.NormalizeCode(stockCode)
	if !s.cfg.Enabled {
		return domain.RealtimeQuote{StockCode: code, Success: true, Message: "market_data disabled"}, nil
	}

	order := s.providerOrderFor(dedupeProviders(s.cfg.RealtimeProviders), domain.MarketOf(code), "fetch_realtime_quote")

	var failed []string
	for _, name := range order {
		if reason := s.disabledReason(name); reason != "" {
			s.recordSkipFailure(name, "fetch_realtime_quote")
			failed = append(failed, string(name))
			continue
		}
		provider, ok := s.catalog[name]
		if !ok {
			failed = append(failed, string(name))
			continue
		}
		rtProvider, ok := provider.(providers.RealtimeProvider)
		if !ok {
			continue
		}

		var quote *domain.RealtimeQuote
		err := s.withRetry(ctx, name, func(ctx context.Context) error {
			q, e := rtProvider.FetchRealtimeQuote(ctx, code)
			quote = q
			return e
		})
		if err != nil {
			s.openCircuit(name)
			s.health.RecordFailure(string(name), "fetch_realtime_quote", classifyFailureReason(err))
			failed = append(failed, string(name))
			if !s.cfg.RealtimeProviderFailoverEnabled {
				break
			}
			continue
		}
		if quote == nil || quote.Price == 0 {
			continue
		}

		quote.Success = true
		if quote.QuoteTime == "" {
			quote.QuoteTime = timeutil.FormatDateTime(timeutil.NowBeijing())
		}
		if quote.PreClose == nil {
			if backfill, berr := s.store.GetRecentClose(ctx, code, timeutil.TodayBeijing()); berr == nil {
				quote.PreClose = backfill
			}
		}
		return *quote, nil
	}

	return domain.RealtimeQuote{
		StockCode:       code,
		Success:         false,
		FailedProviders: failed,
		Message:         "no provider returned a live quote",
	}, nil
}

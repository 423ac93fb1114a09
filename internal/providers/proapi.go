package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

// ProAPIClient is the Pro-API (tushare-style) adapter: the only adapter
// besides Eastmoney that supports all three markets, and the only one that
// exposes FetchDailyByDate and FetchRealtimeIntraday.
type ProAPIClient struct {
	httpClient *http.Client
	log        zerolog.Logger
	token      string
	baseURL    string
}

// NewProAPIClient constructs the Pro-API adapter. Construction fails if
// token is empty or looks cookie-like (contains "uid=", "username=", or
// ";"), matching the Pro-API adapter initialization rule: a bad token must
// never reach the network, it must fail construction so the caller can
// latch init_failed into the health registry immediately.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> TushareProvider.__init__
func NewProAPIClient(token string, log zerolog.Logger) (*ProAPIClient, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" || strings.Contains(trimmed, "uid=") || strings.Contains(trimmed, "username=") || strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("tushare token invalid")
	}
	return &ProAPIClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		log:        log.With().Str("provider", string(ProAPI)).Logger(),
		token:      trimmed,
		baseURL:    "https://api.tushare.pro",
	}, nil
}

func (c *ProAPIClient) Name() Name { return ProAPI }

func (c *ProAPIClient) SupportsMarket(market domain.Market) bool {
	return marketSupportsAll(market)
}

type tushareRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params"`
	Fields  string                 `json:"fields"`
}

type tushareResponse struct {
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
	Code int `json:"code"`
}

func (c *ProAPIClient) call(ctx context.Context, apiName string, params map[string]interface{}, fields string) ([]map[string]interface{}, error) {
	reqBody := tushareRequest{APIName: apiName, Token: c.token, Params: params, Fields: fields}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode tushare request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tushare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded tushareResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode tushare response: %w", err)
	}
	if decoded.Code != 0 {
		return nil, fmt.Errorf("tushare error %d: %s", decoded.Code, decoded.Msg)
	}

	rows := make([]map[string]interface{}, 0, len(decoded.Data.Items))
	for _, item := range decoded.Data.Items {
		row := make(map[string]interface{}, len(decoded.Data.Fields))
		for i, field := range decoded.Data.Fields {
			if i < len(item) {
				row[field] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchSymbols fetches the stock_basic listing.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> TushareProvider.fetch_symbols
func (c *ProAPIClient) FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error) {
	rows, err := c.call(ctx, "stock_basic", map[string]interface{}{"list_status": "L"}, "ts_code,symbol,name")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_symbols: %w", err)
	}
	out := make([]domain.SymbolRow, 0, len(rows))
	for _, row := range rows {
		tsCode := getString(row, "ts_code", "")
		if tsCode == "" {
			continue
		}
		out = append(out, domain.SymbolRow{
			StockCode: domain.NormalizeCode(tushareCodeToCanonical(tsCode)),
			StockName: getString(row, "name", ""),
			Market:    string(ProAPI),
			Source:    string(ProAPI),
		})
	}
	return out, nil
}

// tushareCodeToCanonical converts tushare's `<code>.<exchange>` form
// (SSE/SZSE/BSE) to this module's canonical `<code>.<SH|SZ|BJ>` form.
func tushareCodeToCanonical(tsCode string) string {
	parts := strings.SplitN(tsCode, ".", 2)
	if len(parts) != 2 {
		return tsCode
	}
	switch strings.ToUpper(parts[1]) {
	case "SSE":
		return parts[0] + ".SH"
	case "SZSE":
		return parts[0] + ".SZ"
	case "BSE":
		return parts[0] + ".BJ"
	default:
		return tsCode
	}
}

func canonicalToTushareCode(stockCode string) string {
	parts := strings.SplitN(stockCode, ".", 2)
	if len(parts) != 2 {
		return stockCode
	}
	switch domain.Market(parts[1]) {
	case domain.MarketSH:
		return parts[0] + ".SSE"
	case domain.MarketSZ:
		return parts[0] + ".SZSE"
	case domain.MarketBJ:
		return parts[0] + ".BSE"
	default:
		return stockCode
	}
}

// FetchStockHistory fetches one symbol's daily bars via tushare's `daily` API.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> TushareProvider.fetch_stock_history
func (c *ProAPIClient) FetchStockHistory(ctx context.Context, stockCode, startDate, endDate, adjust string) ([]domain.DailyPriceRow, error) {
	params := map[string]interface{}{
		"ts_code":    canonicalToTushareCode(stockCode),
		"start_date": strings.ReplaceAll(startDate, "-", ""),
		"end_date":   strings.ReplaceAll(endDate, "-", ""),
	}
	rows, err := c.call(ctx, "daily", params, "trade_date,open,close,high,low,vol,pre_close")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_stock_history: %w", err)
	}
	return parseTushareDaily(rows, stockCode, adjust), nil
}

// FetchIndexHistory fetches the HS300 benchmark via tushare's `index_daily` API.
func (c *ProAPIClient) FetchIndexHistory(ctx context.Context, startDate, endDate string) ([]domain.DailyPriceRow, error) {
	params := map[string]interface{}{
		"ts_code":    "000300.SH",
		"start_date": strings.ReplaceAll(startDate, "-", ""),
		"end_date":   strings.ReplaceAll(endDate, "-", ""),
	}
	rows, err := c.call(ctx, "index_daily", params, "trade_date,open,close,high,low,vol,pre_close")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_index_history: %w", err)
	}
	parsed := parseTushareDaily(rows, domain.HS300Code, "none")
	for i := range parsed {
		if parsed[i].ChangePct == nil {
			zero := 0.0
			parsed[i].ChangePct = &zero
		}
	}
	return parsed, nil
}

func parseTushareDaily(rows []map[string]interface{}, stockCode, adjust string) []domain.DailyPriceRow {
	out := make([]domain.DailyPriceRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // tushare returns newest-first; re-sort ascending
		row := rows[i]
		tradeDate := getString(row, "trade_date", "")
		if len(tradeDate) == 8 {
			tradeDate = tradeDate[:4] + "-" + tradeDate[4:6] + "-" + tradeDate[6:8]
		}
		prevClose := getFloat64(row, "pre_close")
		closeVal := getFloat64OrZero(row, "close")
		out = append(out, domain.DailyPriceRow{
			StockCode: domain.NormalizeCode(stockCode),
			TradeDate: tradeDate,
			Adjust:    normalizeAdjustTag(adjust),
			Source:    string(ProAPI),
			Open:      getFloat64OrZero(row, "open"),
			Close:     closeVal,
			High:      getFloat64OrZero(row, "high"),
			Low:       getFloat64OrZero(row, "low"),
			Volume:    getFloat64OrZero(row, "vol"),
			ChangePct: DeriveChangePct(closeVal, prevClose),
		})
	}
	return out
}

// FetchDailyByDate returns every A-share bar for one trade date in a single
// call, the batch-by-date flow's vendor primitive.
// Faithful translation from Python: modules/analyzers/market_data_sync.py -> sync_daily_by_dates
func (c *ProAPIClient) FetchDailyByDate(ctx context.Context, tradeDate string) ([]domain.DailyPriceRow, error) {
	params := map[string]interface{}{"trade_date": strings.ReplaceAll(tradeDate, "-", "")}
	rows, err := c.call(ctx, "daily", params, "ts_code,trade_date,open,close,high,low,vol,pre_close")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_daily_by_date: %w", err)
	}
	out := make([]domain.DailyPriceRow, 0, len(rows))
	for _, row := range rows {
		tsCode := getString(row, "ts_code", "")
		if tsCode == "" {
			continue
		}
		parsed := parseTushareDaily([]map[string]interface{}{row}, tushareCodeToCanonical(tsCode), "qfq")
		out = append(out, parsed...)
	}
	return out, nil
}

// FetchRealtimeIntraday returns the latest intraday minute bar for one
// symbol via the `rt_min` endpoint, the first hop of the Pro-API realtime
// three-endpoint sequence.
func (c *ProAPIClient) FetchRealtimeIntraday(ctx context.Context, stockCode string) (*domain.DailyPriceRow, error) {
	params := map[string]interface{}{"ts_code": canonicalToTushareCode(stockCode)}
	rows, err := c.call(ctx, "rt_min", params, "trade_time,open,close,high,low,vol,pre_close")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_realtime_intraday: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	last := rows[len(rows)-1]
	row := domain.DailyPriceRow{
		StockCode: domain.NormalizeCode(stockCode),
		TradeDate: getString(last, "trade_time", ""),
		Adjust:    "none",
		Source:    string(ProAPI) + ".rt_min",
		Open:      getFloat64OrZero(last, "open"),
		Close:     getFloat64OrZero(last, "close"),
		High:      getFloat64OrZero(last, "high"),
		Low:       getFloat64OrZero(last, "low"),
		Volume:    getFloat64OrZero(last, "vol"),
	}
	return &row, nil
}

// FetchRealtimeQuote tries the three Pro-API realtime endpoints in order,
// rt_min, stk_mins, realtime_quote, and returns the first one that yields a
// non-null price.
// Faithful translation from Python: modules/analyzers/market_data_sync.py -> _fetch_realtime_quote_from_provider (tushare branch)
func (c *ProAPIClient) FetchRealtimeQuote(ctx context.Context, stockCode string) (*domain.RealtimeQuote, error) {
	tsCode := canonicalToTushareCode(stockCode)

	if bar, err := c.FetchRealtimeIntraday(ctx, stockCode); err == nil && bar != nil && bar.Close != 0 {
		return &domain.RealtimeQuote{
			Success:      true,
			StockCode:    domain.NormalizeCode(stockCode),
			Price:        bar.Close,
			Open:         &bar.Open,
			QuoteTime:    bar.TradeDate,
			ProviderUsed: string(ProAPI),
			ProviderPath: "rt_min",
			Source:       string(ProAPI) + ".rt_min",
		}, nil
	}

	if rows, err := c.call(ctx, "stk_mins", map[string]interface{}{"ts_code": tsCode, "freq": "1min"}, "trade_time,close,pre_close"); err == nil && len(rows) > 0 {
		last := rows[len(rows)-1]
		price := getFloat64(last, "close")
		if price != nil && *price != 0 {
			return &domain.RealtimeQuote{
				Success:      true,
				StockCode:    domain.NormalizeCode(stockCode),
				Price:        *price,
				PreClose:     getFloat64(last, "pre_close"),
				QuoteTime:    getString(last, "trade_time", ""),
				ProviderUsed: string(ProAPI),
				ProviderPath: "stk_mins",
				Source:       string(ProAPI) + ".stk_mins",
			}, nil
		}
	}

	rows, err := c.call(ctx, "realtime_quote", map[string]interface{}{"ts_code": tsCode}, "trade_time,price,pre_close")
	if err != nil {
		return nil, fmt.Errorf("pro_api fetch_realtime_quote: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	last := rows[0]
	price := getFloat64(last, "price")
	if price == nil || *price == 0 {
		return nil, nil
	}
	return &domain.RealtimeQuote{
		Success:      true,
		StockCode:    domain.NormalizeCode(stockCode),
		Price:        *price,
		PreClose:     getFloat64(last, "pre_close"),
		QuoteTime:    getString(last, "trade_time", ""),
		ProviderUsed: string(ProAPI),
		ProviderPath: "realtime_quote",
		Source:       string(ProAPI) + ".realtime_quote",
	}, nil
}

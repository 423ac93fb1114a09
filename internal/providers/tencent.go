package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

// TencentClient is the Tencent adapter. It supports only {SH, SZ}; routing
// must exclude BJ symbols before calling it.
type TencentClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewTencentClient constructs the Tencent adapter.
func NewTencentClient(log zerolog.Logger) *TencentClient {
	return &TencentClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("provider", string(Tencent)).Logger(),
	}
}

func (c *TencentClient) Name() Name { return Tencent }

func (c *TencentClient) SupportsMarket(market domain.Market) bool {
	return marketSupportsSHSZOnly(market)
}

// tencentSymbol converts a canonical code into Tencent's `sh`/`sz`-prefixed form.
func tencentSymbol(stockCode string) (string, bool) {
	parts := strings.SplitN(stockCode, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	switch domain.Market(parts[1]) {
	case domain.MarketSH:
		return "sh" + parts[0], true
	case domain.MarketSZ:
		return "sz" + parts[0], true
	default:
		return "", false
	}
}

// FetchSymbols is not supported by the Tencent adapter in this
// implementation; the symbol dictionary is sourced from Eastmoney/Pro-API.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> TencentProvider.fetch_symbols
func (c *TencentClient) FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error) {
	return []domain.SymbolRow{}, nil
}

// FetchStockHistory fetches daily bars via Tencent's fqkline endpoint.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> TencentProvider.fetch_stock_history
func (c *TencentClient) FetchStockHistory(ctx context.Context, stockCode, startDate, endDate, adjust string) ([]domain.DailyPriceRow, error) {
	market, parts := domain.Market(""), strings.SplitN(stockCode, ".", 2)
	if len(parts) == 2 {
		market = domain.Market(parts[1])
	}
	if !c.SupportsMarket(market) {
		return []domain.DailyPriceRow{}, nil
	}

	symbol, ok := tencentSymbol(stockCode)
	if !ok {
		return []domain.DailyPriceRow{}, nil
	}

	adjustTag := "qfq"
	if adjust == "hfq" {
		adjustTag = "hfq"
	} else if adjust == "none" || adjust == "" {
		adjustTag = ""
	}

	url := fmt.Sprintf(
		"https://web.ifzq.gtimg.cn/appstock/app/fqkline/get?param=%s,day,%s,%s,640,%s",
		symbol, startDate, endDate, adjustTag,
	)
	body, err := httpGet(ctx, c.httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("tencent fetch_stock_history: %w", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tencent fetch_stock_history decode: %w", err)
	}

	series := extractTencentSeries(parsed, symbol, adjustTag)
	rows := make([]domain.DailyPriceRow, 0, len(series))
	var prevClose *float64
	for _, raw := range series {
		row, err := parseTencentBar(raw, stockCode, adjust)
		if err != nil {
			continue
		}
		if row.TradeDate < startDate || row.TradeDate > endDate {
			continue
		}
		row.ChangePct = DeriveChangePct(row.Close, prevClose)
		closeCopy := row.Close
		prevClose = &closeCopy
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchIndexHistory delegates to FetchStockHistory for the HS300 code,
// which is a Shanghai-listed index and therefore supported.
func (c *TencentClient) FetchIndexHistory(ctx context.Context, startDate, endDate string) ([]domain.DailyPriceRow, error) {
	rows, err := c.FetchStockHistory(ctx, domain.HS300Code, startDate, endDate, "none")
	if err != nil {
		return nil, fmt.Errorf("tencent fetch_index_history: %w", err)
	}
	for i := range rows {
		if rows[i].ChangePct == nil {
			zero := 0.0
			rows[i].ChangePct = &zero
		}
	}
	return rows, nil
}

func extractTencentSeries(parsed map[string]interface{}, symbol, adjustTag string) []interface{} {
	data, ok := parsed["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	symData, ok := data[symbol].(map[string]interface{})
	if !ok {
		return nil
	}
	key := "day"
	if adjustTag != "" {
		key = adjustTag
	}
	if series, ok := symData[key].([]interface{}); ok {
		return series
	}
	if series, ok := symData["day"].([]interface{}); ok {
		return series
	}
	return nil
}

// FetchRealtimeQuote fetches Tencent's single-symbol realtime snapshot
// ("v_shXXXXXX=\"...\";", tilde-delimited). Price is field 3, previous close
// field 4, today's open field 5.
func (c *TencentClient) FetchRealtimeQuote(ctx context.Context, stockCode string) (*domain.RealtimeQuote, error) {
	symbol, ok := tencentSymbol(stockCode)
	if !ok {
		return nil, nil
	}
	url := "https://qt.gtimg.cn/q=" + symbol
	body, err := httpGet(ctx, c.httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("tencent fetch_realtime_quote: %w", err)
	}
	fields := parseTencentSpotLine(string(body))
	if len(fields) < 6 {
		return nil, nil
	}
	price, err1 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || price == 0 {
		return nil, nil
	}
	quote := &domain.RealtimeQuote{
		StockCode:    domain.NormalizeCode(stockCode),
		Price:        price,
		ProviderUsed: string(Tencent),
		ProviderPath: "spot",
		Source:       string(Tencent) + ".spot",
	}
	if preClose, err := strconv.ParseFloat(fields[4], 64); err == nil {
		quote.PreClose = &preClose
	}
	if open, err := strconv.ParseFloat(fields[5], 64); err == nil {
		quote.Open = &open
	}
	if len(fields) > 30 {
		quote.QuoteTime = fields[30]
	}
	return quote, nil
}

// parseTencentSpotLine extracts the tilde-delimited field list out of
// Tencent's `v_shXXXXXX="a~b~c~...";` response body.
func parseTencentSpotLine(body string) []string {
	start := strings.Index(body, "\"")
	end := strings.LastIndex(body, "\"")
	if start < 0 || end <= start {
		return nil
	}
	return strings.Split(body[start+1:end], "~")
}

func parseTencentBar(raw interface{}, stockCode, adjust string) (domain.DailyPriceRow, error) {
	fields, ok := raw.([]interface{})
	if !ok || len(fields) < 6 {
		return domain.DailyPriceRow{}, fmt.Errorf("malformed tencent bar")
	}
	toFloat := func(v interface{}) float64 {
		s, _ := v.(string)
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	date, _ := fields[0].(string)

	return domain.DailyPriceRow{
		StockCode: domain.NormalizeCode(stockCode),
		TradeDate: date,
		Adjust:    normalizeAdjustTag(adjust),
		Source:    string(Tencent),
		Open:      toFloat(fields[1]),
		Close:     toFloat(fields[2]),
		High:      toFloat(fields[3]),
		Low:       toFloat(fields[4]),
		Volume:    toFloat(fields[5]),
	}, nil
}

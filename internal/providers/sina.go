package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

// SinaClient is the Sina adapter. Like Tencent, it supports only {SH, SZ}.
type SinaClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewSinaClient constructs the Sina adapter.
func NewSinaClient(log zerolog.Logger) *SinaClient {
	return &SinaClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("provider", string(Sina)).Logger(),
	}
}

func (c *SinaClient) Name() Name { return Sina }

func (c *SinaClient) SupportsMarket(market domain.Market) bool {
	return marketSupportsSHSZOnly(market)
}

func sinaSymbol(stockCode string) (string, bool) {
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

// FetchSymbols is not supported by the Sina adapter; see TencentClient.FetchSymbols.
func (c *SinaClient) FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error) {
	return []domain.SymbolRow{}, nil
}

type sinaBar struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// FetchStockHistory fetches daily bars from Sina's kline JSON endpoint.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> SinaProvider.fetch_stock_history
func (c *SinaClient) FetchStockHistory(ctx context.Context, stockCode, startDate, endDate, adjust string) ([]domain.DailyPriceRow, error) {
	market, parts := domain.Market(""), strings.SplitN(stockCode, ".", 2)
	if len(parts) == 2 {
		market = domain.Market(parts[1])
	}
	if !c.SupportsMarket(market) {
		return []domain.DailyPriceRow{}, nil
	}

	symbol, ok := sinaSymbol(stockCode)
	if !ok {
		return []domain.DailyPriceRow{}, nil
	}

	scale := "240"
	url := fmt.Sprintf(
		"https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData?symbol=%s&scale=%s&ma=no&datalen=1023",
		symbol, scale,
	)
	body, err := httpGet(ctx, c.httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("sina fetch_stock_history: %w", err)
	}

	var bars []sinaBar
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, fmt.Errorf("sina fetch_stock_history decode: %w", err)
	}

	rows := make([]domain.DailyPriceRow, 0, len(bars))
	var prevClose *float64
	for _, bar := range bars {
		tradeDate := bar.Day
		if len(tradeDate) > 10 {
			tradeDate = tradeDate[:10]
		}
		if tradeDate < startDate || tradeDate > endDate {
			continue
		}
		row := domain.DailyPriceRow{
			StockCode: domain.NormalizeCode(stockCode),
			TradeDate: tradeDate,
			Adjust:    normalizeAdjustTag(adjust),
			Source:    string(Sina),
			Open:      parseSinaFloat(bar.Open),
			Close:     parseSinaFloat(bar.Close),
			High:      parseSinaFloat(bar.High),
			Low:       parseSinaFloat(bar.Low),
			Volume:    parseSinaFloat(bar.Volume),
		}
		row.ChangePct = DeriveChangePct(row.Close, prevClose)
		closeCopy := row.Close
		prevClose = &closeCopy
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchIndexHistory delegates to FetchStockHistory for the HS300 code.
func (c *SinaClient) FetchIndexHistory(ctx context.Context, startDate, endDate string) ([]domain.DailyPriceRow, error) {
	rows, err := c.FetchStockHistory(ctx, domain.HS300Code, startDate, endDate, "none")
	if err != nil {
		return nil, fmt.Errorf("sina fetch_index_history: %w", err)
	}
	for i := range rows {
		if rows[i].ChangePct == nil {
			zero := 0.0
			rows[i].ChangePct = &zero
		}
	}
	return rows, nil
}

// FetchRealtimeQuote fetches Sina's single-symbol realtime snapshot
// ("var hq_str_shXXXXXX=\"name,open,pre_close,price,...\";").
func (c *SinaClient) FetchRealtimeQuote(ctx context.Context, stockCode string) (*domain.RealtimeQuote, error) {
	symbol, ok := sinaSymbol(stockCode)
	if !ok {
		return nil, nil
	}
	url := "https://hq.sinajs.cn/list=" + symbol
	body, err := httpGet(ctx, c.httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("sina fetch_realtime_quote: %w", err)
	}
	fields := parseSinaSpotLine(string(body))
	if len(fields) < 4 {
		return nil, nil
	}
	price := parseSinaFloat(fields[3])
	if price == 0 {
		return nil, nil
	}
	quote := &domain.RealtimeQuote{
		StockCode:    domain.NormalizeCode(stockCode),
		Price:        price,
		ProviderUsed: string(Sina),
		ProviderPath: "spot",
		Source:       string(Sina) + ".spot",
	}
	open := parseSinaFloat(fields[1])
	quote.Open = &open
	preClose := parseSinaFloat(fields[2])
	quote.PreClose = &preClose
	if len(fields) > 31 {
		quote.QuoteTime = fields[30] + " " + fields[31]
	}
	return quote, nil
}

// parseSinaSpotLine extracts the comma-delimited field list out of Sina's
// `var hq_str_shXXXXXX="a,b,c,...";` response body.
func parseSinaSpotLine(body string) []string {
	start := strings.Index(body, "\"")
	end := strings.LastIndex(body, "\"")
	if start < 0 || end <= start {
		return nil
	}
	return strings.Split(body[start+1:end], ",")
}

func parseSinaFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%f", &f)
	return f
}

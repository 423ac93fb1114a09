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

// EastmoneyClient is the Eastmoney-proxy adapter. It supports all three
// markets {SH, SZ, BJ} and is the default first hop in the failover order
// for both history and realtime.
type EastmoneyClient struct {
	httpClient *http.Client
	log        zerolog.Logger
	baseURL    string
}

// NewEastmoneyClient constructs the Eastmoney-proxy adapter.
func NewEastmoneyClient(log zerolog.Logger) *EastmoneyClient {
	return &EastmoneyClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("provider", string(Eastmoney)).Logger(),
		baseURL:    "https://push2his.eastmoney.com/api/qt",
	}
}

func (c *EastmoneyClient) Name() Name { return Eastmoney }

func (c *EastmoneyClient) SupportsMarket(market domain.Market) bool {
	return marketSupportsAll(market)
}

// secID converts a canonical stock code into Eastmoney's `<market>.<code>`
// security id: market 0 for SZ/BJ, 1 for SH.
func secID(stockCode string) string {
	parts := strings.SplitN(stockCode, ".", 2)
	code := parts[0]
	marketTag := domain.MarketUnknown
	if len(parts) == 2 {
		marketTag = domain.Market(parts[1])
	}
	switch marketTag {
	case domain.MarketSH:
		return "1." + code
	default:
		return "0." + code
	}
}

type eastmoneyKlineResponse struct {
	Data struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

// FetchSymbols fetches the full A-share symbol dictionary.
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> AkshareProvider.fetch_symbols
func (c *EastmoneyClient) FetchSymbols(ctx context.Context) ([]domain.SymbolRow, error) {
	url := c.baseURL + "/clist/get?pn=1&pz=8000&fs=m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney fetch_symbols: %w", err)
	}

	var parsed struct {
		Data struct {
			Diff []map[string]interface{} `json:"diff"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("eastmoney fetch_symbols decode: %w", err)
	}

	rows := make([]domain.SymbolRow, 0, len(parsed.Data.Diff))
	for _, item := range parsed.Data.Diff {
		code := getString(item, "f12", "")
		if code == "" {
			continue
		}
		rows = append(rows, domain.SymbolRow{
			StockCode: domain.NormalizeCode(code),
			StockName: getString(item, "f14", ""),
			Market:    string(Eastmoney),
			Source:    string(Eastmoney),
		})
	}
	return rows, nil
}

// FetchStockHistory fetches one symbol's daily bars in [startDate, endDate].
// Faithful translation from Python: modules/analyzers/market_data_providers.py -> AkshareProvider.fetch_stock_history
func (c *EastmoneyClient) FetchStockHistory(ctx context.Context, stockCode, startDate, endDate, adjust string) ([]domain.DailyPriceRow, error) {
	fqt := "1"
	if adjust == "hfq" {
		fqt = "2"
	} else if adjust == "" || adjust == "none" {
		fqt = "0"
	}
	url := fmt.Sprintf(
		"%s/stock/kline/get?secid=%s&fields1=f1,f2,f3,f4,f5&fields2=f51,f52,f53,f54,f55,f56&klt=101&fqt=%s&beg=%s&end=%s",
		c.baseURL, secID(stockCode), fqt, strings.ReplaceAll(startDate, "-", ""), strings.ReplaceAll(endDate, "-", ""),
	)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney fetch_stock_history: %w", err)
	}

	var resp eastmoneyKlineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("eastmoney fetch_stock_history decode: %w", err)
	}

	rows := make([]domain.DailyPriceRow, 0, len(resp.Data.Klines))
	var prevClose *float64
	for _, line := range resp.Data.Klines {
		row, err := parseEastmoneyKline(line, stockCode, adjust)
		if err != nil {
			continue
		}
		row.ChangePct = DeriveChangePct(row.Close, prevClose)
		closeCopy := row.Close
		prevClose = &closeCopy
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchIndexHistory fetches the HS300 index's daily bars.
func (c *EastmoneyClient) FetchIndexHistory(ctx context.Context, startDate, endDate string) ([]domain.DailyPriceRow, error) {
	rows, err := c.FetchStockHistory(ctx, domain.HS300Code, startDate, endDate, "none")
	if err != nil {
		return nil, fmt.Errorf("eastmoney fetch_index_history: %w", err)
	}
	for i := range rows {
		rows[i].StockCode = domain.HS300Code
		if rows[i].ChangePct == nil {
			zero := 0.0
			rows[i].ChangePct = &zero
		}
	}
	return rows, nil
}

func parseEastmoneyKline(line, stockCode, adjust string) (domain.DailyPriceRow, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return domain.DailyPriceRow{}, fmt.Errorf("malformed kline row: %q", line)
	}
	open, _ := strconv.ParseFloat(fields[1], 64)
	closeVal, _ := strconv.ParseFloat(fields[2], 64)
	high, _ := strconv.ParseFloat(fields[3], 64)
	low, _ := strconv.ParseFloat(fields[4], 64)
	volume, _ := strconv.ParseFloat(fields[5], 64)

	return domain.DailyPriceRow{
		StockCode: domain.NormalizeCode(stockCode),
		TradeDate: fields[0],
		Adjust:    normalizeAdjustTag(adjust),
		Source:    string(Eastmoney),
		Open:      open,
		Close:     closeVal,
		High:      high,
		Low:       low,
		Volume:    volume,
	}, nil
}

func normalizeAdjustTag(adjust string) string {
	if adjust == "" {
		return "none"
	}
	return strings.ToLower(adjust)
}

func (c *EastmoneyClient) get(ctx context.Context, url string) ([]byte, error) {
	return httpGet(ctx, c.httpClient, url)
}

type eastmoneyQuoteResponse struct {
	Data map[string]interface{} `json:"data"`
}

// FetchRealtimeQuote fetches a single-symbol spot quote. Eastmoney exposes a
// per-symbol snapshot endpoint, so the cached-spot-table-filtered-by-code
// fallback other providers need collapses to one direct request here.
func (c *EastmoneyClient) FetchRealtimeQuote(ctx context.Context, stockCode string) (*domain.RealtimeQuote, error) {
	url := fmt.Sprintf("%s/stock/get?secid=%s&fields=f43,f60,f46,f86", c.baseURL, secID(stockCode))
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney fetch_realtime_quote: %w", err)
	}
	var resp eastmoneyQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("eastmoney fetch_realtime_quote decode: %w", err)
	}
	if resp.Data == nil {
		return nil, nil
	}
	price := getFloat64(resp.Data, "f43")
	if price == nil || *price == 0 {
		return nil, nil
	}
	quote := &domain.RealtimeQuote{
		StockCode:    domain.NormalizeCode(stockCode),
		Price:        *price,
		PreClose:     getFloat64(resp.Data, "f60"),
		Open:         getFloat64(resp.Data, "f46"),
		ProviderUsed: string(Eastmoney),
		ProviderPath: "spot",
		Source:       string(Eastmoney) + ".spot",
	}
	if t := getFloat64(resp.Data, "f86"); t != nil {
		quote.QuoteTime = strconv.FormatInt(int64(*t), 10)
	}
	return quote, nil
}

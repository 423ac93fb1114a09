package providers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

func TestTencentSymbol_PrefixesByMarket(t *testing.T) {
	sym, ok := tencentSymbol("600000.SH")
	require.True(t, ok)
	assert.Equal(t, "sh600000", sym)

	sym, ok = tencentSymbol("000001.SZ")
	require.True(t, ok)
	assert.Equal(t, "sz000001", sym)

	_, ok = tencentSymbol("830799.BJ")
	assert.False(t, ok)
}

func TestTencentClient_SupportsOnlySHSZ(t *testing.T) {
	client := NewTencentClient(zerolog.Nop())
	assert.True(t, client.SupportsMarket(domain.MarketSH))
	assert.True(t, client.SupportsMarket(domain.MarketSZ))
	assert.False(t, client.SupportsMarket(domain.MarketBJ))
}

func TestTencentClient_FetchStockHistory_UnsupportedMarketReturnsEmptyNotError(t *testing.T) {
	client := NewTencentClient(zerolog.Nop())
	rows, err := client.FetchStockHistory(nil, "830799.BJ", "2024-01-01", "2024-01-03", "qfq")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExtractTencentSeries_FallsBackToDayKey(t *testing.T) {
	parsed := map[string]interface{}{
		"data": map[string]interface{}{
			"sh600000": map[string]interface{}{
				"day": []interface{}{[]interface{}{"2024-01-02", "10.0", "10.5", "10.6", "9.9", "900"}},
			},
		},
	}
	series := extractTencentSeries(parsed, "sh600000", "qfq")
	require.Len(t, series, 1)
}

func TestParseTencentBar_ReadsPositionalFields(t *testing.T) {
	raw := []interface{}{"2024-01-02", "10.0", "10.5", "10.6", "9.9", "900"}
	row, err := parseTencentBar(raw, "600000.SH", "qfq")
	require.NoError(t, err)
	assert.Equal(t, 10.5, row.Close)
	assert.Equal(t, "2024-01-02", row.TradeDate)
}

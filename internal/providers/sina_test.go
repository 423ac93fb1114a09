package providers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

func TestSinaSymbol_PrefixesByMarket(t *testing.T) {
	sym, ok := sinaSymbol("600000.SH")
	require.True(t, ok)
	assert.Equal(t, "sh600000", sym)

	_, ok = sinaSymbol("830799.BJ")
	assert.False(t, ok)
}

func TestParseSinaFloat_ParsesDecimalString(t *testing.T) {
	assert.InDelta(t, 10.56, parseSinaFloat("10.56"), 0.0001)
}

func TestSinaClient_FetchSymbols_ReturnsEmpty(t *testing.T) {
	client := NewSinaClient(zerolog.Nop())
	rows, err := client.FetchSymbols(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSinaClient_FetchStockHistory_UnsupportedMarketReturnsEmpty(t *testing.T) {
	client := NewSinaClient(zerolog.Nop())
	rows, err := client.FetchStockHistory(context.Background(), "830799.BJ", "2024-01-01", "2024-01-03", "qfq")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSinaClient_SupportsOnlySHSZ(t *testing.T) {
	client := NewSinaClient(zerolog.Nop())
	assert.True(t, client.SupportsMarket(domain.MarketSH))
	assert.False(t, client.SupportsMarket(domain.MarketBJ))
}

package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

func TestSecID_RoutesShanghaiAndOthersDifferently(t *testing.T) {
	assert.Equal(t, "1.600000", secID("600000.SH"))
	assert.Equal(t, "0.000001", secID("000001.SZ"))
	assert.Equal(t, "0.830799", secID("830799.BJ"))
}

func TestEastmoneyClient_SupportsAllThreeMarkets(t *testing.T) {
	client := NewEastmoneyClient(zerolog.Nop())
	assert.True(t, client.SupportsMarket(domain.MarketSH))
	assert.True(t, client.SupportsMarket(domain.MarketSZ))
	assert.True(t, client.SupportsMarket(domain.MarketBJ))
	assert.False(t, client.SupportsMarket(domain.MarketUnknown))
}

func TestParseEastmoneyKline_DerivesFieldsFromCommaLine(t *testing.T) {
	row, err := parseEastmoneyKline("2024-01-02,10.0,10.5,10.6,9.9,900", "600000.SH", "qfq")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", row.TradeDate)
	assert.Equal(t, 10.5, row.Close)
	assert.Equal(t, "qfq", row.Adjust)
}

func TestParseEastmoneyKline_RejectsMalformedLine(t *testing.T) {
	_, err := parseEastmoneyKline("2024-01-02,10.0", "600000.SH", "qfq")
	require.Error(t, err)
}

func TestEastmoneyClient_FetchSymbols_ParsesDiffList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"diff":[{"f12":"600000","f14":"Pudong Bank"}]}}`))
	}))
	defer server.Close()

	client := NewEastmoneyClient(zerolog.Nop())
	client.baseURL = server.URL

	rows, err := client.FetchSymbols(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "600000.SH", rows[0].StockCode)
	assert.Equal(t, "Pudong Bank", rows[0].StockName)
}

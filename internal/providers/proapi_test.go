package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProAPIClient_RejectsEmptyToken(t *testing.T) {
	_, err := NewProAPIClient("", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tushare token invalid")
}

func TestNewProAPIClient_RejectsCookieLikeToken(t *testing.T) {
	for _, bad := range []string{"uid=123abc", "username=bob&pass=x", "a;b"} {
		_, err := NewProAPIClient(bad, zerolog.Nop())
		require.Error(t, err, bad)
	}
}

func TestNewProAPIClient_AcceptsPlainToken(t *testing.T) {
	client, err := NewProAPIClient("a1b2c3d4e5f6", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ProAPI, client.Name())
}

func TestTushareCodeToCanonical_RoundTrips(t *testing.T) {
	assert.Equal(t, "600000.SH", tushareCodeToCanonical("600000.SSE"))
	assert.Equal(t, "000001.SZ", tushareCodeToCanonical("000001.SZSE"))
	assert.Equal(t, "830799.BJ", tushareCodeToCanonical("830799.BSE"))
	assert.Equal(t, "600000.SSE", canonicalToTushareCode("600000.SH"))
}

func TestProAPIClient_FetchStockHistory_ParsesAscendingAndDerivesChangePct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"trade_date", "open", "close", "high", "low", "vol", "pre_close"},
				"items": [][]interface{}{
					{"20240103", 10.5, 10.8, 10.9, 10.4, 1000.0, 10.5},
					{"20240102", 10.0, 10.5, 10.6, 9.9, 900.0, 10.0},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewProAPIClient("sometoken123", zerolog.Nop())
	require.NoError(t, err)
	client.baseURL = server.URL

	rows, err := client.FetchStockHistory(context.Background(), "600000.SH", "2024-01-02", "2024-01-03", "qfq")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-02", rows[0].TradeDate)
	assert.Equal(t, "2024-01-03", rows[1].TradeDate)
	require.NotNil(t, rows[1].ChangePct)
}

func TestProAPIClient_Call_SurfacesVendorErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 40001, "msg": "invalid token"})
	}))
	defer server.Close()

	client, err := NewProAPIClient("sometoken123", zerolog.Nop())
	require.NoError(t, err)
	client.baseURL = server.URL

	_, err = client.FetchStockHistory(context.Background(), "600000.SH", "2024-01-01", "2024-01-03", "qfq")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

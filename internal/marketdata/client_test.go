package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump"

const tokensBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {"chainId":"solana","dexId":"raydium","pairAddress":"p1",
     "baseToken":{"address":"` + mint + `","symbol":"RDR"},
     "quoteToken":{"address":"So11111111111111111111111111111111111111112","symbol":"SOL"},
     "priceUsd":"0.0000015","fdv":1500,"marketCap":1400},
    {"chainId":"solana","dexId":"pumpswap","pairAddress":"p2",
     "baseToken":{"address":"` + mint + `","symbol":"RDR"},
     "quoteToken":{"address":"So11111111111111111111111111111111111111112","symbol":"SOL"},
     "marketCap":2100},
    {"chainId":"solana","dexId":"orca","pairAddress":"p3",
     "baseToken":{"address":"So11111111111111111111111111111111111111112","symbol":"SOL"},
     "quoteToken":{"address":"` + mint + `","symbol":"RDR"},
     "fdv":99999999},
    {"chainId":"solana","dexId":"meteora","pairAddress":"p4",
     "baseToken":{"address":"` + mint + `","symbol":"RDR"},
     "quoteToken":{"address":"x","symbol":"USDC"},
     "fdv":null,"marketCap":0},
    {"chainId":"solana","dexId":"raydium","pairAddress":"p5",
     "baseToken":{"address":"` + mint + `","symbol":"RDR"},
     "quoteToken":{"address":"x","symbol":"USDC"},
     "fdv":"4200.5"}
  ]
}`

func serve(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+mint, r.URL.Path)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 100)
}

func TestValuation(t *testing.T) {
	got, err := serve(t, tokensBody).Valuation(context.Background(), mint)
	require.NoError(t, err)
	require.True(t, got.Valid)
	assert.True(t, decimal.NewFromInt(1500).Equal(got.Decimal), "got %s", got.Decimal)
}

func TestValuationIgnoresOtherPairs(t *testing.T) {
	const body = `{"pairs":[
	  {"pairAddress":"quote","baseToken":{"address":"So11111111111111111111111111111111111111112"},
	   "quoteToken":{"address":"` + mint + `"},"fdv":99999999},
	  {"pairAddress":"main","baseToken":{"address":"` + mint + `"},"fdv":100000},
	  {"pairAddress":"thin","baseToken":{"address":"` + mint + `"},"fdv":450000}
	]}`

	got, err := serve(t, body).Valuation(context.Background(), mint)
	require.NoError(t, err)
	require.True(t, got.Valid)
	assert.True(t, decimal.NewFromInt(100000).Equal(got.Decimal), "got %s", got.Decimal)
}

func TestValuationFallsBackToMarketCap(t *testing.T) {
	const body = `{"pairs":[{"baseToken":{"address":"` + mint + `"},"fdv":null,"marketCap":"2100.25"}]}`

	got, err := serve(t, body).Valuation(context.Background(), mint)
	require.NoError(t, err)
	require.True(t, got.Valid)
	assert.True(t, decimal.RequireFromString("2100.25").Equal(got.Decimal))
}

func TestValuationMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unlisted", body: `{"schemaVersion":"1.0.0","pairs":null}`},
		{name: "no valuation on main pair", body: `{"pairs":[
		  {"baseToken":{"address":"` + mint + `"},"marketCap":0},
		  {"baseToken":{"address":"` + mint + `"},"fdv":450000}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := serve(t, tt.body).Valuation(context.Background(), mint)
			require.NoError(t, err)
			assert.False(t, got.Valid)
		})
	}
}

func TestGetPairsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 100).GetPairs(context.Background(), mint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestGetPairsBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 100).GetPairs(context.Background(), mint)
	assert.ErrorContains(t, err, "decode response")
}

func TestGetPairsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("http://127.0.0.1:1", 100).GetPairs(ctx, mint)
	assert.Error(t, err)
}

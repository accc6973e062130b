package router

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2olabs/dcabot/internal/domain"
)

func TestFindBestRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "0xusdc", r.URL.Query().Get("fromToken"))
		assert.Equal(t, "0xweth", r.URL.Query().Get("toToken"))
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		json.NewEncoder(w).Encode(apiQuote{
			RouteID:     "r-42",
			AmountIn:    "100000000",
			ExpectedOut: "25500000000",
			Path:        []string{"uniswap-v3"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	route, err := c.FindBestRoute(context.Background(), "0xusdc", "0xweth", big.NewInt(100_000_000))
	require.NoError(t, err)

	assert.Equal(t, "r-42", route.ID)
	assert.Equal(t, "25500000000", route.ExpectedOut.String())
	assert.Equal(t, []string{"uniswap-v3"}, route.Path)
}

func TestFindBestRouteNoPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no route"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FindBestRoute(context.Background(), "0xusdc", "0xdust", big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
}

func TestFindBestRouteZeroOutputQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiQuote{RouteID: "r-1", AmountIn: "1", ExpectedOut: "0"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FindBestRoute(context.Background(), "0xusdc", "0xweth", big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
}

func TestExecuteSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/swap", r.URL.Path)

		var req apiSwapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "r-42", req.RouteID)
		assert.Equal(t, "100000000", req.Amount)

		json.NewEncoder(w).Encode(apiSwapResponse{AmountOut: "25400000000", TxHash: "0xabc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	res, err := c.ExecuteSwap(context.Background(), &domain.Route{ID: "r-42"}, big.NewInt(100_000_000))
	require.NoError(t, err)

	assert.Equal(t, "25400000000", res.AmountOut.String())
	assert.Equal(t, "0xabc", res.TxHash)
}

func TestExecuteSwapServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.ExecuteSwap(context.Background(), &domain.Route{ID: "r-1"}, big.NewInt(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRouteUnavailable, "5xx other than 502/503 is not a routing refusal")
}

func TestMalformedAmountRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiQuote{RouteID: "r-1", AmountIn: "1", ExpectedOut: "12.5"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FindBestRoute(context.Background(), "0xusdc", "0xweth", big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed amount")
}

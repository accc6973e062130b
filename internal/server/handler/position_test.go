package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2olabs/dcabot/internal/dca"
	"github.com/h2olabs/dcabot/internal/domain"
	"github.com/h2olabs/dcabot/internal/store/memory"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type passRouter struct{}

func (passRouter) FindBestRoute(ctx context.Context, from, to string, amountIn *big.Int) (*domain.Route, error) {
	return &domain.Route{
		ID: "r", FromToken: from, ToToken: to,
		AmountIn:    new(big.Int).Set(amountIn),
		ExpectedOut: new(big.Int).Mul(amountIn, big.NewInt(2)),
	}, nil
}

func (passRouter) ExecuteSwap(ctx context.Context, route *domain.Route, amountIn *big.Int) (*domain.SwapResult, error) {
	return &domain.SwapResult{AmountOut: new(big.Int).Mul(amountIn, big.NewInt(2)), TxHash: "0x1"}, nil
}

func newMux(t *testing.T) (*http.ServeMux, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	engine := dca.NewEngine(
		memory.NewPositionStore(), memory.NewExecutionStore(),
		passRouter{}, memory.NewLockManager(), clock, nil,
		1200, slog.Default(),
	)
	h := NewPositionHandler(engine, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/positions", h.CreatePosition)
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("GET /api/positions/active", h.ListActivePositions)
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
	mux.HandleFunc("POST /api/positions/{id}/pause", h.PausePosition)
	mux.HandleFunc("POST /api/positions/{id}/resume", h.ResumePosition)
	mux.HandleFunc("POST /api/positions/{id}/close", h.ClosePosition)
	mux.HandleFunc("POST /api/positions/{id}/execute", h.ExecutePosition)
	mux.HandleFunc("GET /api/positions/{id}/yield", h.GetYield)
	return mux, clock
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func validCreateBody() map[string]any {
	return map[string]any{
		"owner":           "0xowner",
		"sourceToken":     "0xusdc",
		"sourceDecimals":  6,
		"targetTokens":    []map[string]any{{"token": "0xweth", "symbol": "WETH", "percent": 100}},
		"amountPerPeriod": "100",
		"interval":        "weekly",
		"totalPeriods":    4,
		"strategy":        "fixed",
	}
}

func TestCreateAndGetPosition(t *testing.T) {
	mux, _ := newMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "100000000", created.AmountPerPeriod)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, int64(604800000), created.IntervalMs)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsBadBody(t *testing.T) {
	mux, _ := newMux(t)

	body := validCreateBody()
	body["totalPeriods"] = 0
	rec := doJSON(t, mux, http.MethodPost, "/api/positions", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader([]byte("{not json")))
	raw := httptest.NewRecorder()
	mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	mux, _ := newMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var pos positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paused positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))
	assert.Equal(t, "paused", paused.Status)

	// Pausing twice is an invalid transition.
	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, "closed", closed.Status)
}

func TestExecuteEndpointReportsSkip(t *testing.T) {
	mux, clock := newMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var pos positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))

	// Not due yet.
	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"executed":false}`, rec.Body.String())

	clock.now = clock.now.Add(7 * 24 * time.Hour)
	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"executed":true}`, rec.Body.String())
}

func TestListEndpoints(t *testing.T) {
	mux, _ := newMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions?owner=0xowner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "owner is required")
}

func TestYieldEndpoint(t *testing.T) {
	mux, _ := newMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var pos positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))

	rec = doJSON(t, mux, http.MethodGet, "/api/positions/"+pos.ID+"/yield", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var y map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &y))
	assert.Equal(t, "0", y["totalYield"])
	assert.EqualValues(t, 1200, y["apyBps"])
}

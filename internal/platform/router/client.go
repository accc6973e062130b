// Package router is the REST client for the swap-routing aggregator that
// quotes and executes token swaps on behalf of the engine.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// Client is the REST client for the routing service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a routing service client.
//
// baseURL is the service root, e.g. "https://router.h2o.finance". apiKey may
// be empty for unauthenticated deployments.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FindBestRoute asks the aggregator for the best swap path for amountIn of
// fromToken into toToken.
func (c *Client) FindBestRoute(ctx context.Context, fromToken, toToken string, amountIn *big.Int) (*domain.Route, error) {
	params := url.Values{}
	params.Set("fromToken", fromToken)
	params.Set("toToken", toToken)
	params.Set("amount", amountIn.String())

	path := "/v1/quote?" + params.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("router: quote %s->%s: %w", fromToken, toToken, err)
	}

	var quote apiQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("router: decode quote: %w", err)
	}

	route, err := quote.toDomainRoute(fromToken, toToken)
	if err != nil {
		return nil, fmt.Errorf("router: quote %s->%s: %w", fromToken, toToken, err)
	}
	return route, nil
}

// ExecuteSwap materializes a previously quoted route.
func (c *Client) ExecuteSwap(ctx context.Context, route *domain.Route, amountIn *big.Int) (*domain.SwapResult, error) {
	reqBody := apiSwapRequest{
		RouteID: route.ID,
		Amount:  amountIn.String(),
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/swap", reqBody)
	if err != nil {
		return nil, fmt.Errorf("router: swap route %s: %w", route.ID, err)
	}

	var swap apiSwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("router: decode swap response: %w", err)
	}

	result, err := swap.toDomainResult()
	if err != nil {
		return nil, fmt.Errorf("router: swap route %s: %w", route.ID, err)
	}
	return result, nil
}

// doRequest sends one request to the routing service and returns the raw
// response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. Anything the
// router refuses is ErrRouteUnavailable from the engine's point of view: the
// period stays due and is retried on the next sweep.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusServiceUnavailable, http.StatusBadGateway:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRouteUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.RouterClient = (*Client)(nil)

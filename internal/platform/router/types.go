package router

import (
	"fmt"
	"math/big"

	"github.com/h2olabs/dcabot/internal/domain"
)

// apiQuote is the wire shape of a routing quote. Amounts arrive as decimal
// strings in smallest units.
type apiQuote struct {
	RouteID     string   `json:"routeId"`
	AmountIn    string   `json:"amountIn"`
	ExpectedOut string   `json:"expectedOut"`
	Path        []string `json:"path"`
}

// apiSwapRequest is the wire shape of a swap execution request.
type apiSwapRequest struct {
	RouteID string `json:"routeId"`
	Amount  string `json:"amount"`
}

// apiSwapResponse is the wire shape of a completed swap.
type apiSwapResponse struct {
	AmountOut string `json:"amountOut"`
	TxHash    string `json:"txHash"`
}

func (q *apiQuote) toDomainRoute(fromToken, toToken string) (*domain.Route, error) {
	amountIn, err := parseWireAmount(q.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("amountIn: %w", err)
	}
	expectedOut, err := parseWireAmount(q.ExpectedOut)
	if err != nil {
		return nil, fmt.Errorf("expectedOut: %w", err)
	}
	if expectedOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quote has no output", domain.ErrRouteUnavailable)
	}
	return &domain.Route{
		ID:          q.RouteID,
		FromToken:   fromToken,
		ToToken:     toToken,
		AmountIn:    amountIn,
		ExpectedOut: expectedOut,
		Path:        q.Path,
	}, nil
}

func (r *apiSwapResponse) toDomainResult() (*domain.SwapResult, error) {
	amountOut, err := parseWireAmount(r.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("amountOut: %w", err)
	}
	return &domain.SwapResult{
		AmountOut: amountOut,
		TxHash:    r.TxHash,
	}, nil
}

func parseWireAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}

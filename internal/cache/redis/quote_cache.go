package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/h2olabs/dcabot/internal/domain"
)

// CachedRouter wraps a RouterClient with a short-TTL quote cache. Quotes are
// advisory; the short TTL keeps limit-price gating honest while sparing the
// aggregator a call per position when many positions share a pair and size.
// ExecuteSwap always goes straight through.
type CachedRouter struct {
	next domain.RouterClient
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedRouter creates a CachedRouter around next.
func NewCachedRouter(c *Client, next domain.RouterClient, ttl time.Duration) *CachedRouter {
	return &CachedRouter{next: next, rdb: c.Underlying(), ttl: ttl}
}

type cachedRouteJSON struct {
	ID          string   `json:"id"`
	AmountIn    string   `json:"amountIn"`
	ExpectedOut string   `json:"expectedOut"`
	Path        []string `json:"path"`
}

func quoteKey(fromToken, toToken string, amountIn *big.Int) string {
	return fmt.Sprintf("quote:%s:%s:%s", fromToken, toToken, amountIn)
}

// FindBestRoute serves a cached quote when one is fresh, otherwise asks the
// aggregator and caches the answer. Cache failures degrade to a direct call.
func (r *CachedRouter) FindBestRoute(ctx context.Context, fromToken, toToken string, amountIn *big.Int) (*domain.Route, error) {
	key := quoteKey(fromToken, toToken, amountIn)

	payload, err := r.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var stored cachedRouteJSON
		if uerr := json.Unmarshal(payload, &stored); uerr == nil {
			if route, derr := stored.toDomain(fromToken, toToken); derr == nil {
				return route, nil
			}
		}
		// Corrupt entry: fall through to a fresh quote.
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	route, err := r.next.FindBestRoute(ctx, fromToken, toToken, amountIn)
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(cachedRouteJSON{
		ID:          route.ID,
		AmountIn:    route.AmountIn.String(),
		ExpectedOut: route.ExpectedOut.String(),
		Path:        route.Path,
	}); merr == nil {
		_ = r.rdb.Set(ctx, key, payload, r.ttl).Err()
	}
	return route, nil
}

// ExecuteSwap passes straight through to the aggregator.
func (r *CachedRouter) ExecuteSwap(ctx context.Context, route *domain.Route, amountIn *big.Int) (*domain.SwapResult, error) {
	return r.next.ExecuteSwap(ctx, route, amountIn)
}

func (j *cachedRouteJSON) toDomain(fromToken, toToken string) (*domain.Route, error) {
	amountIn, ok := new(big.Int).SetString(j.AmountIn, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt cached amountIn %q", j.AmountIn)
	}
	expectedOut, ok := new(big.Int).SetString(j.ExpectedOut, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt cached expectedOut %q", j.ExpectedOut)
	}
	return &domain.Route{
		ID:          j.ID,
		FromToken:   fromToken,
		ToToken:     toToken,
		AmountIn:    amountIn,
		ExpectedOut: expectedOut,
		Path:        j.Path,
	}, nil
}

var _ domain.RouterClient = (*CachedRouter)(nil)

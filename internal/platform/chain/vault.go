// Package chain reads the yield vault's on-chain state over JSON-RPC. The
// vault is an ERC-4626-style contract; calls are read-only eth_call with
// hand-packed selectors, no generated bindings.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/h2olabs/dcabot/internal/domain"
)

// 4-byte selectors for the vault's view functions.
var (
	selTotalAssets      = selector("totalAssets()")
	selTotalDeposited   = selector("totalDeposited()")
	selTotalWithdrawn   = selector("totalWithdrawn()")
	selTotalYieldEarned = selector("totalYieldEarned()")
	selBalanceOf        = selector("balanceOf(address)")
	selConvertToAssets  = selector("convertToAssets(uint256)")
)

func selector(sig string) []byte {
	return ethcrypto.Keccak256([]byte(sig))[:4]
}

// VaultClient reads vault state from an EVM JSON-RPC endpoint.
type VaultClient struct {
	eth   *ethclient.Client
	vault common.Address
	clock domain.Clock
}

// NewVaultClient dials the RPC endpoint and binds to the vault contract
// address.
func NewVaultClient(ctx context.Context, rpcURL, vaultAddress string, clock domain.Clock) (*VaultClient, error) {
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("chain: invalid vault address %q", vaultAddress)
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return &VaultClient{
		eth:   eth,
		vault: common.HexToAddress(vaultAddress),
		clock: clock,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *VaultClient) Close() {
	c.eth.Close()
}

// GetVaultState reads the vault's aggregate counters in one pass.
func (c *VaultClient) GetVaultState(ctx context.Context) (*domain.VaultState, error) {
	state := &domain.VaultState{FetchedAt: c.clock.Now().UTC()}

	reads := []struct {
		name string
		sel  []byte
		dst  **big.Int
	}{
		{"totalAssets", selTotalAssets, &state.TotalAssets},
		{"totalDeposited", selTotalDeposited, &state.TotalDeposited},
		{"totalWithdrawn", selTotalWithdrawn, &state.TotalWithdrawn},
		{"totalYieldEarned", selTotalYieldEarned, &state.TotalYieldEarned},
	}
	for _, r := range reads {
		v, err := c.callUint256(ctx, r.sel)
		if err != nil {
			return nil, fmt.Errorf("chain: %s: %w", r.name, err)
		}
		*r.dst = v
	}

	return state, nil
}

// GetUserAssets reads one owner's share balance and its current value in
// underlying units.
func (c *VaultClient) GetUserAssets(ctx context.Context, owner string) (*domain.UserAssets, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("chain: invalid owner address %q", owner)
	}
	ownerAddr := common.HexToAddress(owner)

	shares, err := c.callUint256(ctx, packCall(selBalanceOf, common.LeftPadBytes(ownerAddr.Bytes(), 32)))
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s: %w", owner, err)
	}

	assets, err := c.callUint256(ctx, packCall(selConvertToAssets, common.LeftPadBytes(shares.Bytes(), 32)))
	if err != nil {
		return nil, fmt.Errorf("chain: convertToAssets %s: %w", owner, err)
	}

	return &domain.UserAssets{
		Owner:        ownerAddr.Hex(),
		Shares:       shares,
		AssetBalance: assets,
	}, nil
}

// callUint256 issues an eth_call against the vault and decodes a single
// uint256 return value.
func (c *VaultClient) callUint256(ctx context.Context, data []byte) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := c.eth.CallContract(callCtx, ethereum.CallMsg{
		To:   &c.vault,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return data: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// packCall concatenates a selector with its already-padded arguments.
func packCall(sel []byte, args ...[]byte) []byte {
	out := make([]byte, 0, 4+32*len(args))
	out = append(out, sel...)
	for _, a := range args {
		out = append(out, a...)
	}
	return out
}

var _ domain.VaultClient = (*VaultClient)(nil)

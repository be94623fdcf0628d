/*

Balance fuses: read-only adapters that value everything the vault holds in
one market. Values are signed (net-borrow markets are legitimately negative)
and WAD-denominated in USD; only the vault-level aggregate is forced
non-negative, and that cast fails loudly instead of wrapping.

*/

package balances

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrFuseNotRegistered = errors.New("balance fuse is not registered")
	ErrNoBalanceFuse     = errors.New("market has no designated balance fuse")
)

// BalanceFuse computes the vault's current value in one market.
type BalanceFuse interface {
	// Address is the fuse's registry identity.
	Address() common.Address
	// Name identifies the protocol variant (e.g. "aave_v3_balance").
	Name() string
	// Version is the fuse's version marker.
	Version() string
	// MarketID is the immutable market binding.
	MarketID() types.MarketID
	// BalanceOfMarket values account's positions across the market's
	// granted substrates. Returns the signed WAD value and the base
	// currency it is denominated in. An empty grant set returns zero with
	// no external calls.
	BalanceOfMarket(ctx context.Context, account common.Address) (sdkmath.Int, common.Address, error)
}

// SubstrateSource enumerates a market's granted substrates.
type SubstrateSource interface {
	GetSubstrates(marketID types.MarketID) ([]types.Substrate, error)
}

// PriceSource resolves asset prices in the middleware's base currency.
type PriceSource interface {
	GetAssetPrice(ctx context.Context, asset common.Address) (sdkmath.Int, error)
	Decimals() int
}

/*

Market types: a market is an opaque numeric identifier for an external
protocol/venue the vault can allocate into. Per-market state tracked here is
what the routing engine and reader surface need: the grant list, the balance
fuse and the cached WAD total.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// MarketID identifies an external protocol/venue (e.g. Aave V3 mainnet = 1).
type MarketID uint64

// MarketConfig is the read-only view of one market's configuration.
type MarketConfig struct {
	ID          MarketID       `json:"id"`
	Substrates  []Substrate    `json:"substrates"`
	BalanceFuse common.Address `json:"balance_fuse"`
}

// MarketTotal is one market's cached valuation, signed and WAD-denominated.
// Negative totals are valid for net-borrow markets; only the vault-level
// aggregate is required to be non-negative.
type MarketTotal struct {
	ID        MarketID    `json:"id"`
	ValueWAD  sdkmath.Int `json:"value_wad"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// VaultSummary is the aggregate view served by the reader API.
type VaultSummary struct {
	BaseAsset      common.Address `json:"base_asset"`
	TotalAssetsWAD sdkmath.Int    `json:"total_assets_wad"`
	IdleBalance    sdkmath.Int    `json:"idle_balance"`
	TotalShares    sdkmath.Int    `json:"total_shares"`
	MarketTotals   []MarketTotal  `json:"market_totals"`
	Timestamp      time.Time      `json:"timestamp"`
}

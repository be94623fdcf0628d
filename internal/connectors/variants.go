/*

Protocol-specific fuse variants. Every variant satisfies the canonical
LendingFuse shape; only the protocol binding and version tag differ, so the
constructors stay thin instead of repeating near-identical adapter bodies
per protocol.

*/

package connectors

import (
	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
)

// NewAaveV3SupplyFuse binds an Aave V3 pool to marketID.
func NewAaveV3SupplyFuse(marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	return NewLendingFuse("aave_v3_supply", "2.0.0", marketID, pool)
}

// NewCompoundV3SupplyFuse binds a Compound V3 comet to marketID.
func NewCompoundV3SupplyFuse(marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	return NewLendingFuse("compound_v3_supply", "2.0.0", marketID, pool)
}

// NewMorphoBlueSupplyFuse binds a Morpho Blue market to marketID.
func NewMorphoBlueSupplyFuse(marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	return NewLendingFuse("morpho_blue_supply", "1.1.0", marketID, pool)
}

// NewSparkSupplyFuse binds a Spark pool to marketID.
func NewSparkSupplyFuse(marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	return NewLendingFuse("spark_supply", "1.0.0", marketID, pool)
}

// NewEulerV2SupplyFuse binds an Euler V2 vault to marketID.
func NewEulerV2SupplyFuse(marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	return NewLendingFuse("euler_v2_supply", "1.0.0", marketID, pool)
}

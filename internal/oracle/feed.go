/*

Price feed primitives. Sources follow the Chainlink aggregator shape so both
push feeds and pull adapters plug in behind one interface.

*/

package oracle

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// RoundData mirrors the Chainlink latestRoundData tuple.
type RoundData struct {
	RoundID         uint64
	Price           sdkmath.Int // signed; middleware rejects non-positive values
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// PriceFeed is a single price source for one asset/USD pair.
type PriceFeed interface {
	// LatestRoundData returns the source's most recent round.
	LatestRoundData(ctx context.Context) (RoundData, error)
	// Decimals is the fixed-point precision of Price.
	Decimals() int
}

// FeedRegistry is the fallback aggregator keyed by (asset, base) pair,
// consulted when no per-asset source is configured.
type FeedRegistry interface {
	// Feed returns the registered feed for the pair, or false when absent.
	Feed(asset, base common.Address) (PriceFeed, bool)
}

/*

Simulated price feeds and rewards sources for dry-run mode and tests.

*/

package simulations

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/oracle"
	"github.com/fusion-network/pvm/internal/protocols"
)

// StaticFeed is a Chainlink-shaped feed with a settable answer.
type StaticFeed struct {
	mu       sync.Mutex
	price    sdkmath.Int
	decimals int
	round    uint64
}

// NewStaticFeed creates a feed answering price at the given precision.
func NewStaticFeed(price sdkmath.Int, decimals int) *StaticFeed {
	return &StaticFeed{price: price, decimals: decimals, round: 1}
}

// SetPrice updates the feed's answer and advances the round.
func (f *StaticFeed) SetPrice(price sdkmath.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
	f.round++
}

// LatestRoundData implements oracle.PriceFeed.
func (f *StaticFeed) LatestRoundData(_ context.Context) (oracle.RoundData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	return oracle.RoundData{
		RoundID:         f.round,
		Price:           f.price,
		StartedAt:       now,
		UpdatedAt:       now,
		AnsweredInRound: f.round,
	}, nil
}

// Decimals implements oracle.PriceFeed.
func (f *StaticFeed) Decimals() int { return f.decimals }

// FeedRegistry is a map-backed fallback registry.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[common.Address]oracle.PriceFeed
}

// NewFeedRegistry creates an empty registry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[common.Address]oracle.PriceFeed)}
}

// Add registers a USD feed for asset.
func (r *FeedRegistry) Add(asset common.Address, feed oracle.PriceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[asset] = feed
}

// Feed implements oracle.FeedRegistry for the USD base.
func (r *FeedRegistry) Feed(asset, base common.Address) (oracle.PriceFeed, bool) {
	if base != oracle.USDBase {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[asset]
	return f, ok
}

// RewardsVenue is a simulated rewards source with a settable pending amount.
type RewardsVenue struct {
	mu      sync.Mutex
	asset   common.Address
	pending sdkmath.Int
}

// NewRewardsVenue creates a venue paying rewards in asset.
func NewRewardsVenue(asset common.Address) *RewardsVenue {
	return &RewardsVenue{asset: asset, pending: sdkmath.ZeroInt()}
}

// SetPending sets the claimable amount.
func (v *RewardsVenue) SetPending(amount sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = amount
}

// RewardAsset implements protocols.RewardsSource.
func (v *RewardsVenue) RewardAsset() common.Address { return v.asset }

// Claim implements protocols.RewardsSource: pays out and zeroes the pending
// amount.
func (v *RewardsVenue) Claim(_ context.Context, _ common.Address) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	claimed := v.pending
	v.pending = sdkmath.ZeroInt()
	return claimed, nil
}

// Snapshot implements protocols.Snapshotter.
func (v *RewardsVenue) Snapshot() protocols.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// Restore implements protocols.Snapshotter.
func (v *RewardsVenue) Restore(snapshot protocols.Snapshot) {
	pending, ok := snapshot.(sdkmath.Int)
	if !ok || pending.IsNil() {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = pending
}

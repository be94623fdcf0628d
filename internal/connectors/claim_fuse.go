/*

Rewards claim fuse. Claims pending protocol rewards on behalf of the vault
and forwards exactly the claimed delta of the reward token to the configured
rewards-claim manager. An unset manager address is a hard error before any
protocol call: silently keeping (or dropping) claimed rewards would corrupt
the vault's accounting.

*/

package connectors

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"
)

// RewardsClaimFuse claims rewards from one venue and forwards them onward.
type RewardsClaimFuse struct {
	name     string
	version  string
	address  common.Address
	marketID types.MarketID
	source   protocols.RewardsSource
}

// NewRewardsClaimFuse binds a rewards source to marketID.
func NewRewardsClaimFuse(name, version string, marketID types.MarketID, source protocols.RewardsSource) (*RewardsClaimFuse, error) {
	if name == "" {
		return nil, fmt.Errorf("fuse name cannot be empty")
	}
	if version == "" {
		return nil, fmt.Errorf("fuse version cannot be empty")
	}
	if source == nil {
		return nil, fmt.Errorf("rewards source cannot be nil")
	}
	return &RewardsClaimFuse{
		name:     name,
		version:  version,
		address:  DeriveFuseAddress(name, version),
		marketID: marketID,
		source:   source,
	}, nil
}

func (f *RewardsClaimFuse) Address() common.Address  { return f.address }
func (f *RewardsClaimFuse) Name() string             { return f.name }
func (f *RewardsClaimFuse) Version() string          { return f.version }
func (f *RewardsClaimFuse) MarketID() types.MarketID { return f.marketID }

// Venue implements VenueBacked for batch rollback of the rewards source.
func (f *RewardsClaimFuse) Venue() protocols.Snapshotter { return f.source }

// Claim pulls pending rewards and forwards finalBalance - initialBalance of
// the reward token to the rewards-claim manager.
func (f *RewardsClaimFuse) Claim(ctx context.Context, ex *vault.Execution) (types.ActionReceipt, error) {
	manager := ex.RewardsClaimManager()
	if manager == (common.Address{}) {
		return types.ActionReceipt{}, fmt.Errorf("%w: claim fuse %s", ErrRewardsManagerNotSet, f.name)
	}

	rewardAsset := f.source.RewardAsset()
	substrate := types.PackSubstrate(types.SubstrateKindRewardVault, rewardAsset)
	if !ex.IsGranted(f.marketID, substrate) {
		return types.ActionReceipt{}, fmt.Errorf("%w: claim, asset %s, market %d", ErrUnsupportedAsset, rewardAsset.Hex(), f.marketID)
	}

	ex.Touch(f.marketID)

	initial := ex.BalanceOf(rewardAsset)

	claimed, err := f.source.Claim(ctx, ex.Account())
	if err != nil {
		return types.ActionReceipt{}, fmt.Errorf("rewards claim failed: %w", err)
	}
	if claimed.IsNil() || claimed.IsNegative() {
		return types.ActionReceipt{}, fmt.Errorf("%w: claimed amount %v", ErrInvalidAmount, claimed)
	}
	if claimed.IsZero() {
		return f.receipt(rewardAsset, sdkmath.ZeroInt()), nil
	}
	if err := ex.Credit(rewardAsset, claimed); err != nil {
		return types.ActionReceipt{}, fmt.Errorf("claim credit failed: %w", err)
	}

	// Forward exactly the claimed delta, so pre-existing reward-token
	// balances stay in the vault.
	delta := ex.BalanceOf(rewardAsset).Sub(initial)
	if err := ex.TransferOut(rewardAsset, delta, manager); err != nil {
		return types.ActionReceipt{}, fmt.Errorf("rewards forwarding failed: %w", err)
	}

	claimLogger := logger.GetForComponent("fuse_" + f.name)
	claimLogger.Info().
		Str("action", "claim").
		Str("version", f.version).
		Str("reward_asset", rewardAsset.Hex()).
		Str("amount", delta.String()).
		Str("manager", manager.Hex()).
		Msg("Rewards claimed and forwarded")

	return f.receipt(rewardAsset, delta), nil
}

func (f *RewardsClaimFuse) receipt(asset common.Address, amount sdkmath.Int) types.ActionReceipt {
	return types.ActionReceipt{
		Action:    "claim",
		Fuse:      f.address,
		FuseName:  f.name,
		Version:   f.version,
		MarketID:  f.marketID,
		Asset:     asset,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
}

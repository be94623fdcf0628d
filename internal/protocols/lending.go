/*

Collaborator interfaces for external lending protocols. The vault core
depends only on this enter/exit/balanceOf shape; protocol internals (Aave,
Compound, Morpho mechanics) are assumed correct and used opaquely. All
amounts are native asset units at the token's own decimal precision.

*/

package protocols

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is an opaque, venue-owned copy of mutable state.
type Snapshot interface{}

// Snapshotter extends batch rollback to a venue: a failed action batch
// rewinds every mutated collaborator, not just the vault ledger, matching
// the all-or-nothing semantics of a reverted transaction.
type Snapshotter interface {
	// Snapshot captures the venue's current state.
	Snapshot() Snapshot

	// Restore rewinds the venue to a previously captured snapshot.
	Restore(Snapshot)
}

// LendingMarket is the fixed surface of one external lending venue.
type LendingMarket interface {
	Snapshotter

	// Name identifies the venue for logs and receipts (e.g. "aave_v3").
	Name() string

	// Supply deposits amount of asset on behalf of account.
	Supply(ctx context.Context, account, asset common.Address, amount sdkmath.Int) error

	// Withdraw redeems up to amount of asset for account and returns the
	// amount actually withdrawn, which may be lower than requested.
	Withdraw(ctx context.Context, account, asset common.Address, amount sdkmath.Int) (sdkmath.Int, error)

	// SupplyOf returns account's current supply position in asset,
	// including accrued interest.
	SupplyOf(ctx context.Context, account, asset common.Address) (sdkmath.Int, error)

	// DebtOf returns account's current debt in asset.
	DebtOf(ctx context.Context, account, asset common.Address) (sdkmath.Int, error)
}

// TokenMeta resolves ERC-20 metadata the valuation path needs.
type TokenMeta interface {
	// Decimals returns the token's decimal precision.
	Decimals(asset common.Address) (int, error)
}

// RewardsSource is a venue that accrues claimable reward tokens.
type RewardsSource interface {
	Snapshotter

	// RewardAsset is the token rewards are paid in.
	RewardAsset() common.Address

	// Claim transfers all pending rewards to account and returns the
	// claimed amount. A zero amount with nil error means nothing pending.
	Claim(ctx context.Context, account common.Address) (sdkmath.Int, error)
}

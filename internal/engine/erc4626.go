/*

ERC-4626 entry points over the vault ledger. Every state-changing operation
accrues fees first, so share pricing always runs against the post-fee NAV,
and runs under the same snapshot/rollback discipline as fuse batches.
Conversions round against the user on the way in (mint/withdraw round up)
and for the vault on the way out (deposit/redeem round down), the standard
ERC-4626 rounding directions.

*/

package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/utils"
	"github.com/fusion-network/pvm/internal/vault"
)

// ceilQuo divides a by b rounding up. b must be positive.
func ceilQuo(a, b sdkmath.Int) sdkmath.Int {
	return a.Add(b.SubRaw(1)).Quo(b)
}

// assetsToValue prices base-asset units into WAD base currency.
func (e *Engine) assetsToValue(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	price, err := e.prices.GetAssetPrice(ctx, e.ledger.BaseAsset())
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("base asset valuation failed: %w", err)
	}
	return utils.ValueToWad(assets, e.ledger.BaseDecimals(), price, e.prices.Decimals())
}

// valueToAssets converts a WAD value back to base-asset units, rounding in
// the requested direction.
func (e *Engine) valueToAssets(ctx context.Context, value sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	price, err := e.prices.GetAssetPrice(ctx, e.ledger.BaseAsset())
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("base asset valuation failed: %w", err)
	}
	assets, err := utils.WadToAssetAmount(value, e.ledger.BaseDecimals(), price, e.prices.Decimals())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if roundUp {
		back, err := utils.ValueToWad(assets, e.ledger.BaseDecimals(), price, e.prices.Decimals())
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if back.LT(value) {
			assets = assets.AddRaw(1)
		}
	}
	return assets, nil
}

// valueToShares converts a WAD value into shares at the current share price.
// An empty vault prices shares 1:1 with WAD value.
func (e *Engine) valueToShares(value, nav, totalShares sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return value, nil
	}
	if nav.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: shares outstanding with zero NAV", ErrNoSharePrice)
	}
	if roundUp {
		return ceilQuo(value.Mul(totalShares), nav), nil
	}
	return value.Mul(totalShares).Quo(nav), nil
}

// sharesToValue converts shares into WAD value at the current share price.
func (e *Engine) sharesToValue(shares, nav, totalShares sdkmath.Int, roundUp bool) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return shares, nil
	}
	if roundUp {
		return ceilQuo(shares.Mul(nav), totalShares), nil
	}
	return shares.Mul(nav).Quo(totalShares), nil
}

func validatePositive(amount sdkmath.Int, label string) error {
	if amount.IsNil() {
		return fmt.Errorf("%s is nil", label)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%s must be positive, got %s", label, amount)
	}
	return nil
}

// Deposit takes assets base-asset units from receiver and mints shares.
func (e *Engine) Deposit(ctx context.Context, receiver common.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	if e.roles.Paused() {
		return sdkmath.ZeroInt(), accesscontrol.ErrVaultPaused
	}
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver", vault.ErrZeroAddress)
	}
	if err := validatePositive(assets, "deposit assets"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.ledger.Snapshot()

	shares, err := e.depositLocked(ctx, receiver, assets)
	if err != nil {
		e.ledger.Restore(snap)
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (e *Engine) depositLocked(ctx context.Context, receiver common.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	if err := e.accrueFees(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, err := e.assetsToValue(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	shares, err := e.valueToShares(value, nav, e.ledger.TotalShares(), false)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := validatePositive(shares, "minted shares"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := e.ledger.Credit(e.ledger.BaseAsset(), assets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := e.ledger.MintShares(receiver, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.log.Info().
		Str("receiver", receiver.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit")
	return shares, nil
}

// Mint mints exactly shares to receiver, charging the rounded-up asset cost.
func (e *Engine) Mint(ctx context.Context, receiver common.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if e.roles.Paused() {
		return sdkmath.ZeroInt(), accesscontrol.ErrVaultPaused
	}
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver", vault.ErrZeroAddress)
	}
	if err := validatePositive(shares, "mint shares"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.ledger.Snapshot()

	assets, err := e.mintLocked(ctx, receiver, shares)
	if err != nil {
		e.ledger.Restore(snap)
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

func (e *Engine) mintLocked(ctx context.Context, receiver common.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if err := e.accrueFees(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, err := e.sharesToValue(shares, nav, e.ledger.TotalShares(), true)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets, err := e.valueToAssets(ctx, value, true)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := validatePositive(assets, "mint assets"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := e.ledger.Credit(e.ledger.BaseAsset(), assets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := e.ledger.MintShares(receiver, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.log.Info().
		Str("receiver", receiver.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Mint")
	return assets, nil
}

// Withdraw pays out exactly assets base-asset units to owner, burning the
// rounded-up share cost. When idle liquidity is short, the configured
// instant-withdrawal routes free liquidity first; if they cannot cover the
// full amount the whole operation fails.
func (e *Engine) Withdraw(ctx context.Context, owner common.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	if e.roles.Paused() {
		return sdkmath.ZeroInt(), accesscontrol.ErrVaultPaused
	}
	if owner == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: owner", vault.ErrZeroAddress)
	}
	if err := validatePositive(assets, "withdraw assets"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.ledger.Snapshot()
	venues := e.snapshotVenues()

	shares, totals, err := e.withdrawLocked(ctx, owner, assets)
	if err != nil {
		e.ledger.Restore(snap)
		restoreVenues(venues)
		return sdkmath.ZeroInt(), err
	}
	e.persistMarketTotals(totals)
	return shares, nil
}

func (e *Engine) withdrawLocked(ctx context.Context, owner common.Address, assets sdkmath.Int) (sdkmath.Int, []types.MarketTotal, error) {
	if err := e.accrueFees(ctx); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	value, err := e.assetsToValue(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	shares, err := e.valueToShares(value, nav, e.ledger.TotalShares(), true)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	if e.ledger.SharesOf(owner).LT(shares) {
		return sdkmath.ZeroInt(), nil, fmt.Errorf("%w: owner %s", vault.ErrInsufficientShares, owner.Hex())
	}

	totals, err := e.ensureLiquidity(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	if err := e.ledger.BurnShares(owner, shares); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	if err := e.ledger.TransferOut(e.ledger.BaseAsset(), assets, owner); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	e.log.Info().
		Str("owner", owner.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Withdraw")
	return shares, totals, nil
}

// Redeem burns exactly shares from owner and pays out the rounded-down
// asset value, using the same liquidity fallback as Withdraw.
func (e *Engine) Redeem(ctx context.Context, owner common.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if e.roles.Paused() {
		return sdkmath.ZeroInt(), accesscontrol.ErrVaultPaused
	}
	if owner == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: owner", vault.ErrZeroAddress)
	}
	if err := validatePositive(shares, "redeem shares"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.ledger.Snapshot()
	venues := e.snapshotVenues()

	assets, totals, err := e.redeemLocked(ctx, owner, shares)
	if err != nil {
		e.ledger.Restore(snap)
		restoreVenues(venues)
		return sdkmath.ZeroInt(), err
	}
	e.persistMarketTotals(totals)
	return assets, nil
}

func (e *Engine) redeemLocked(ctx context.Context, owner common.Address, shares sdkmath.Int) (sdkmath.Int, []types.MarketTotal, error) {
	if err := e.accrueFees(ctx); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	if e.ledger.SharesOf(owner).LT(shares) {
		return sdkmath.ZeroInt(), nil, fmt.Errorf("%w: owner %s", vault.ErrInsufficientShares, owner.Hex())
	}
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	value, err := e.sharesToValue(shares, nav, e.ledger.TotalShares(), false)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	assets, err := e.valueToAssets(ctx, value, false)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	if err := validatePositive(assets, "redeemed assets"); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	totals, err := e.ensureLiquidity(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	if err := e.ledger.BurnShares(owner, shares); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}
	if err := e.ledger.TransferOut(e.ledger.BaseAsset(), assets, owner); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	e.log.Info().
		Str("owner", owner.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Redeem")
	return assets, totals, nil
}

// ConvertToShares previews the share amount for a deposit of assets.
func (e *Engine) ConvertToShares(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	if err := validatePositive(assets, "assets"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, err := e.assetsToValue(ctx, assets)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return e.valueToShares(value, nav, e.ledger.TotalShares(), false)
}

// ConvertToAssets previews the asset value of shares.
func (e *Engine) ConvertToAssets(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	if err := validatePositive(shares, "shares"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, err := e.sharesToValue(shares, nav, e.ledger.TotalShares(), false)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return e.valueToAssets(ctx, value, false)
}

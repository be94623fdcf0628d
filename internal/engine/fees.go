/*

Fee accrual. Runs before every share-price computation so fees are charged
against the NAV snapshot the incoming operation will price against.
Management fees are time-weighted on NAV; performance fees apply to share-
price growth above the high-water mark. Both settle as freshly minted shares
to the fee accounts, diluting holders by exactly the fee value.

*/

package engine

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/fusion-network/pvm/internal/utils"
)

const (
	bpsDenominator = 10_000
	secondsPerYear = 365 * 24 * 60 * 60
)

// accrueFees settles pending management and performance fees against the
// current NAV. Callers hold e.mu.
func (e *Engine) accrueFees(ctx context.Context) error {
	now := e.clock().UTC()
	elapsed := now.Sub(e.feeState.LastAccrual)
	if elapsed < 0 {
		elapsed = 0
	}

	totalShares := e.ledger.TotalShares()
	if totalShares.IsZero() {
		// Nothing to dilute; restart the accrual window.
		e.feeState.LastAccrual = now
		e.persistFeeState()
		return nil
	}

	nav, err := e.totalAssets(ctx)
	if err != nil {
		return fmt.Errorf("fee accrual NAV computation failed: %w", err)
	}
	if nav.IsZero() {
		e.feeState.LastAccrual = now
		e.persistFeeState()
		return nil
	}

	if err := e.accrueManagementFee(nav, totalShares, elapsed); err != nil {
		return err
	}
	if err := e.accruePerformanceFee(ctx); err != nil {
		return err
	}

	e.feeState.LastAccrual = now
	e.persistFeeState()
	return nil
}

// accrueManagementFee mints timeWeighted-fee shares to the management
// account: feeValue = NAV * bps/10000 * elapsed/year.
func (e *Engine) accrueManagementFee(nav, totalShares sdkmath.Int, elapsed time.Duration) error {
	if e.feeConfig.ManagementFeeBps == 0 || elapsed <= 0 {
		return nil
	}

	seconds := sdkmath.NewInt(int64(elapsed / time.Second))
	if !seconds.IsPositive() {
		return nil
	}

	feeValue := nav.
		Mul(sdkmath.NewIntFromUint64(e.feeConfig.ManagementFeeBps)).
		Mul(seconds).
		Quo(sdkmath.NewInt(bpsDenominator)).
		Quo(sdkmath.NewInt(secondsPerYear))
	if !feeValue.IsPositive() {
		return nil
	}
	if feeValue.GTE(nav) {
		return fmt.Errorf("management fee %s exceeds NAV %s", feeValue, nav)
	}

	// Dilution mint: the fee account ends up owning feeValue/NAV of the
	// vault after minting.
	feeShares := feeValue.Mul(totalShares).Quo(nav.Sub(feeValue))
	if !feeShares.IsPositive() {
		return nil
	}
	if err := e.ledger.MintShares(e.feeConfig.ManagementAccount, feeShares); err != nil {
		return fmt.Errorf("management fee mint failed: %w", err)
	}
	e.feeState.ManagementSharesMinted = e.feeState.ManagementSharesMinted.Add(feeShares)

	e.log.Debug().
		Str("fee_value_wad", feeValue.String()).
		Str("fee_shares", feeShares.String()).
		Msg("Management fee accrued")
	return nil
}

// accruePerformanceFee charges the configured share of share-price growth
// above the high-water mark. The mark only ratchets up.
func (e *Engine) accruePerformanceFee(ctx context.Context) error {
	if e.feeConfig.PerformanceFeeBps == 0 {
		return nil
	}

	totalShares := e.ledger.TotalShares()
	if totalShares.IsZero() {
		return nil
	}
	nav, err := e.totalAssets(ctx)
	if err != nil {
		return fmt.Errorf("performance fee NAV computation failed: %w", err)
	}

	wad := utils.Pow10(utils.WadDecimals)
	sharePrice := nav.Mul(wad).Quo(totalShares)
	hwm := e.feeState.HighWaterMarkWAD
	if sharePrice.LTE(hwm) {
		return nil
	}

	gainValue := sharePrice.Sub(hwm).Mul(totalShares).Quo(wad)
	feeValue := gainValue.
		Mul(sdkmath.NewIntFromUint64(e.feeConfig.PerformanceFeeBps)).
		Quo(sdkmath.NewInt(bpsDenominator))
	if !feeValue.IsPositive() {
		return nil
	}
	if feeValue.GTE(nav) {
		return fmt.Errorf("performance fee %s exceeds NAV %s", feeValue, nav)
	}

	feeShares := feeValue.Mul(totalShares).Quo(nav.Sub(feeValue))
	if feeShares.IsPositive() {
		if err := e.ledger.MintShares(e.feeConfig.PerformanceAccount, feeShares); err != nil {
			return fmt.Errorf("performance fee mint failed: %w", err)
		}
		e.feeState.PerformanceSharesMinted = e.feeState.PerformanceSharesMinted.Add(feeShares)
	}

	// Post-mint share price becomes the new mark; never ratchet down.
	postShares := e.ledger.TotalShares()
	postPrice := nav.Mul(wad).Quo(postShares)
	if postPrice.GT(e.feeState.HighWaterMarkWAD) {
		e.feeState.HighWaterMarkWAD = postPrice
	}

	e.log.Debug().
		Str("share_price_wad", sharePrice.String()).
		Str("fee_value_wad", feeValue.String()).
		Str("high_water_mark", e.feeState.HighWaterMarkWAD.String()).
		Msg("Performance fee accrued")
	return nil
}

func (e *Engine) persistFeeState() {
	if e.persister == nil {
		return
	}
	if err := e.persister.SaveFeeState(e.feeState); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist fee state")
	}
}

package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/utils"
)

func mustInt(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	v, ok := sdkmath.NewIntFromString(s)
	require.True(t, ok)
	return v
}

func TestManagementFeeTimeWeightedDilution(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		ManagementFeeBps:  100, // 1% per year
		ManagementAccount: mgmtAcct,
	})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)

	h.advance(365 * 24 * time.Hour)

	// The next share operation settles the pending fee before pricing.
	_, err = h.eng.Deposit(context.Background(), depositor, usdcAmount(1))
	require.NoError(t, err)

	// One year at 1% on a 1000 WAD NAV is a 10 WAD fee. The dilution mint
	// leaves the management account owning exactly that value:
	// 10e18 * 1000e18 / (1000e18 - 10e18).
	expectedShares := mustInt(t, "10101010101010101010")
	assert.Equal(t, expectedShares, h.ledger.SharesOf(mgmtAcct))

	state := h.eng.FeeState()
	assert.Equal(t, expectedShares, state.ManagementSharesMinted)
	assert.True(t, state.PerformanceSharesMinted.IsZero())
	assert.Equal(t, h.now, state.LastAccrual)
	require.NotEmpty(t, h.persister.feeStates)
}

func TestManagementFeeZeroRate(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{ManagementAccount: mgmtAcct})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	h.advance(365 * 24 * time.Hour)
	_, err = h.eng.Deposit(context.Background(), depositor, usdcAmount(1))
	require.NoError(t, err)

	assert.True(t, h.ledger.SharesOf(mgmtAcct).IsZero())
}

func TestManagementFeeEmptyVaultRestartsWindow(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		ManagementFeeBps:  100,
		ManagementAccount: mgmtAcct,
	})

	// A year of idling with no shares outstanding must not charge the
	// first depositor for the empty period.
	h.advance(365 * 24 * time.Hour)
	shares, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)

	assert.Equal(t, wadAmount(1000), shares)
	assert.True(t, h.ledger.SharesOf(mgmtAcct).IsZero())
	assert.Equal(t, h.now, h.eng.FeeState().LastAccrual)
}

func TestPerformanceFeeChargedAboveHighWaterMark(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		PerformanceFeeBps:  2000, // 20% of gains
		PerformanceAccount: perfAcct,
	})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = h.eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(1000)),
	})
	require.NoError(t, err)

	// 10% yield moves the share price from 1.0 to 1.1 against a 1.0 mark.
	h.pool.AccrueYield(1000)
	require.NoError(t, h.eng.RefreshMarkets(context.Background(), alpha, []types.MarketID{marketID}))

	_, err = h.eng.Deposit(context.Background(), depositor, usdcAmount(1))
	require.NoError(t, err)

	// Gain is 100 WAD, fee 20 WAD, settled as a dilution mint:
	// 20e18 * 1000e18 / (1100e18 - 20e18).
	expectedShares := mustInt(t, "18518518518518518518")
	assert.Equal(t, expectedShares, h.ledger.SharesOf(perfAcct))

	state := h.eng.FeeState()
	assert.Equal(t, expectedShares, state.PerformanceSharesMinted)
	// The mark ratchets to the post-mint share price, above the old 1.0.
	assert.True(t, state.HighWaterMarkWAD.GT(utils.Pow10(utils.WadDecimals)))
}

func TestPerformanceFeeNotChargedBelowMark(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		PerformanceFeeBps:  2000,
		PerformanceAccount: perfAcct,
	})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)

	// Flat share price: repeated operations never charge.
	_, err = h.eng.Deposit(context.Background(), depositor, usdcAmount(500))
	require.NoError(t, err)
	_, err = h.eng.Withdraw(context.Background(), depositor, usdcAmount(200))
	require.NoError(t, err)

	assert.True(t, h.ledger.SharesOf(perfAcct).IsZero())
	assert.Equal(t, utils.Pow10(utils.WadDecimals), h.eng.FeeState().HighWaterMarkWAD)
}

func TestRestoredFeeStateSuppressesAlreadyChargedGains(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		PerformanceFeeBps:  2000,
		PerformanceAccount: perfAcct,
	})

	// Rebuild the engine as if restarted with a persisted 1.5 mark.
	restored := types.FeeState{
		LastAccrual:             h.now,
		HighWaterMarkWAD:        mustInt(t, "1500000000000000000"),
		ManagementSharesMinted:  sdkmath.ZeroInt(),
		PerformanceSharesMinted: sdkmath.ZeroInt(),
	}
	eng, err := NewEngine(Config{
		Ledger:           h.ledger,
		Roles:            h.roles,
		Markets:          h.markets,
		Fuses:            h.fuses,
		BalanceFuses:     h.balFuses,
		Prices:           h.prices,
		FeeConfig:        types.FeeConfig{PerformanceFeeBps: 2000, PerformanceAccount: perfAcct},
		RestoredFeeState: &restored,
		RewardsManager:   rewards,
		Clock:            func() time.Time { return h.now },
	})
	require.NoError(t, err)

	_, err = eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(1000)),
	})
	require.NoError(t, err)

	// Share price rises to 1.1, still below the restored 1.5 mark.
	h.pool.AccrueYield(1000)
	require.NoError(t, eng.RefreshMarkets(context.Background(), alpha, []types.MarketID{marketID}))
	_, err = eng.Deposit(context.Background(), depositor, usdcAmount(1))
	require.NoError(t, err)

	assert.True(t, h.ledger.SharesOf(perfAcct).IsZero())
	assert.Equal(t, restored.HighWaterMarkWAD, eng.FeeState().HighWaterMarkWAD)
}

func TestCombinedFeesSettleManagementFirst(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{
		ManagementFeeBps:   100,
		PerformanceFeeBps:  2000,
		ManagementAccount:  mgmtAcct,
		PerformanceAccount: perfAcct,
	})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)

	h.advance(365 * 24 * time.Hour)
	_, err = h.eng.Deposit(context.Background(), depositor, usdcAmount(1))
	require.NoError(t, err)

	// Flat NAV: the management mint dilutes the share price below the
	// mark, so no performance fee stacks on top of it.
	assert.False(t, h.ledger.SharesOf(mgmtAcct).IsZero())
	assert.True(t, h.ledger.SharesOf(perfAcct).IsZero())
}

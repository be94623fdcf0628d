package connectors

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-network/pvm/internal/simulations"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"
)

var (
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000101")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai       = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	manager   = common.HexToAddress("0x0000000000000000000000000000000000000404")
)

const marketID types.MarketID = 1

// staticGrants is a fixed grant set for fuse tests.
type staticGrants map[types.Substrate]struct{}

func (g staticGrants) IsGranted(_ types.MarketID, substrate types.Substrate) bool {
	_, ok := g[substrate]
	return ok
}

func grantsFor(assets ...types.Substrate) staticGrants {
	g := make(staticGrants, len(assets))
	for _, s := range assets {
		g[s] = struct{}{}
	}
	return g
}

type fuseHarness struct {
	ledger *vault.Ledger
	ex     *vault.Execution
	pool   *simulations.Pool
	fuse   *LendingFuse
}

func newFuseHarness(t *testing.T, grants vault.GrantChecker) *fuseHarness {
	t.Helper()
	ledger, err := vault.NewLedger(vaultAddr, usdc, 6)
	require.NoError(t, err)

	pool, err := simulations.NewPool("aave_v3", map[common.Address]int{usdc: 6})
	require.NoError(t, err)

	fuse, err := NewLendingFuse("aave_v3_supply", "2.0.0", marketID, pool)
	require.NoError(t, err)

	return &fuseHarness{
		ledger: ledger,
		ex:     vault.NewExecution(ledger, grants, manager),
		pool:   pool,
		fuse:   fuse,
	}
}

func TestDeriveFuseAddressStable(t *testing.T) {
	a := DeriveFuseAddress("aave_v3_supply", "2.0.0")
	b := DeriveFuseAddress("aave_v3_supply", "2.0.0")
	c := DeriveFuseAddress("aave_v3_supply", "2.0.1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, common.Address{}, a)
}

func TestEnterSuppliesToPool(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(1_000_000)))

	receipt, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(600_000),
	})
	require.NoError(t, err)

	assert.Equal(t, "enter", receipt.Action)
	assert.True(t, sdkmath.NewInt(600_000).Equal(receipt.Amount))
	assert.Equal(t, marketID, receipt.MarketID)

	assert.True(t, sdkmath.NewInt(400_000).Equal(h.ledger.BalanceOf(usdc)))
	position, err := h.pool.SupplyOf(context.Background(), vaultAddr, usdc)
	require.NoError(t, err)
	assert.True(t, sdkmath.NewInt(600_000).Equal(position))

	assert.Equal(t, []types.MarketID{marketID}, h.ex.Touched())
}

func TestEnterUngrantedAssetRejectedBeforeAnyStateChange(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(1_000_000)))

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  dai,
		Amount: sdkmath.NewInt(100),
	})
	assert.ErrorIs(t, err, ErrUnsupportedAsset)

	// Nothing moved and the market was not marked touched.
	assert.True(t, sdkmath.NewInt(1_000_000).Equal(h.ledger.BalanceOf(usdc)))
	assert.Empty(t, h.ex.Touched())
}

func TestEnterZeroAmountNoOp(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))

	receipt, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.ZeroInt(),
	})
	require.NoError(t, err)
	assert.True(t, receipt.Amount.IsZero())
	// Zero actions still mark the market touched for reconciliation.
	assert.Equal(t, []types.MarketID{marketID}, h.ex.Touched())
}

func TestEnterInvalidAmount(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(-1),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.fuse.Enter(context.Background(), h.ex, types.EnterData{Asset: usdc})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEnterInsufficientIdleBalance(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(100)))

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(101),
	})
	assert.ErrorIs(t, err, vault.ErrInsufficientBalance)
}

func TestEnterSlippageCheck(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(1_000_000)))

	// The simulated pool credits a 1% drift, so the position delta exceeds
	// the supplied amount and a minimum at par passes.
	h.pool.SetInstantYieldBps(100)

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:        usdc,
		Amount:       sdkmath.NewInt(100_000),
		MinAmountOut: sdkmath.NewInt(100_000),
	})
	assert.NoError(t, err)

	// A minimum above the credited position fails.
	_, err = h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:        usdc,
		Amount:       sdkmath.NewInt(100_000),
		MinAmountOut: sdkmath.NewInt(102_000),
	})
	assert.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestExitWithdrawsFromPool(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(1_000_000)))

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(800_000),
	})
	require.NoError(t, err)

	receipt, err := h.fuse.Exit(context.Background(), h.ex, types.ExitData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(300_000),
	})
	require.NoError(t, err)

	assert.Equal(t, "exit", receipt.Action)
	assert.True(t, sdkmath.NewInt(300_000).Equal(receipt.Amount))
	assert.True(t, sdkmath.NewInt(500_000).Equal(h.ledger.BalanceOf(usdc)))
}

func TestExitClampsToLivePosition(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))
	require.NoError(t, h.ledger.Credit(usdc, sdkmath.NewInt(500_000)))

	_, err := h.fuse.Enter(context.Background(), h.ex, types.EnterData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(500_000),
	})
	require.NoError(t, err)

	// Request far more than the position holds; the exit clamps.
	receipt, err := h.fuse.Exit(context.Background(), h.ex, types.ExitData{
		Asset:  usdc,
		Amount: sdkmath.NewInt(2_000_000),
	})
	require.NoError(t, err)
	assert.True(t, sdkmath.NewInt(500_000).Equal(receipt.Amount))
	assert.True(t, sdkmath.NewInt(500_000).Equal(h.ledger.BalanceOf(usdc)))
}

func TestExitEmptyPositionNoOp(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))

	// First exit against an empty position no-ops; repeating it stays safe.
	for i := 0; i < 2; i++ {
		receipt, err := h.fuse.Exit(context.Background(), h.ex, types.ExitData{
			Asset:  usdc,
			Amount: sdkmath.NewInt(1_000_000),
		})
		require.NoError(t, err)
		assert.True(t, receipt.Amount.IsZero())
	}
	assert.True(t, h.ledger.BalanceOf(usdc).IsZero())
}

func TestExitUngrantedAsset(t *testing.T) {
	h := newFuseHarness(t, grantsFor(types.SubstrateFromAsset(usdc)))

	_, err := h.fuse.Exit(context.Background(), h.ex, types.ExitData{
		Asset:  dai,
		Amount: sdkmath.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestLendingFuseConstructorValidation(t *testing.T) {
	pool, err := simulations.NewPool("aave_v3", map[common.Address]int{usdc: 6})
	require.NoError(t, err)

	_, err = NewLendingFuse("", "2.0.0", marketID, pool)
	assert.Error(t, err)

	_, err = NewLendingFuse("aave_v3_supply", "", marketID, pool)
	assert.Error(t, err)

	_, err = NewLendingFuse("aave_v3_supply", "2.0.0", marketID, nil)
	assert.Error(t, err)
}

func TestVariantIdentities(t *testing.T) {
	pool, err := simulations.NewPool("venue", map[common.Address]int{usdc: 6})
	require.NoError(t, err)

	aave, err := NewAaveV3SupplyFuse(marketID, pool)
	require.NoError(t, err)
	compound, err := NewCompoundV3SupplyFuse(marketID, pool)
	require.NoError(t, err)

	assert.Equal(t, "aave_v3_supply", aave.Name())
	assert.NotEqual(t, aave.Address(), compound.Address())
	assert.Equal(t, marketID, aave.MarketID())
}

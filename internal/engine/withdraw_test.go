package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/simulations"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"
)

func TestSetWithdrawRoutesAtomistOnly(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})
	routes := []types.WithdrawRoute{{Fuse: h.supplyFuse.Address(), Asset: usdc}}

	err := h.eng.SetWithdrawRoutes(alpha, routes)
	require.ErrorIs(t, err, accesscontrol.ErrUnauthorized)

	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, routes))
	assert.Equal(t, routes, h.eng.WithdrawRoutes())
}

func TestSetWithdrawRoutesValidation(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})

	t.Run("zero asset", func(t *testing.T) {
		err := h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
			{Fuse: h.supplyFuse.Address()},
		})
		require.ErrorIs(t, err, vault.ErrZeroAddress)
	})

	t.Run("unregistered fuse", func(t *testing.T) {
		err := h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
			{Fuse: common.HexToAddress("0x00000000000000000000000000000000000000EE"), Asset: usdc},
		})
		require.ErrorIs(t, err, connectors.ErrFuseNotRegistered)
	})

	t.Run("claim-only fuse cannot serve withdrawals", func(t *testing.T) {
		venue := simulations.NewRewardsVenue(usdc)
		claimFuse, err := connectors.NewRewardsClaimFuse("merkl_claim", "1.0.0", marketID, venue)
		require.NoError(t, err)
		require.NoError(t, h.fuses.Register(atomist, claimFuse))

		err = h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
			{Fuse: claimFuse.Address(), Asset: usdc},
		})
		require.ErrorIs(t, err, ErrFuseCapability)
	})
}

func TestWithdrawRoutesReturnsCopy(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})
	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
		{Fuse: h.supplyFuse.Address(), Asset: usdc},
	}))

	got := h.eng.WithdrawRoutes()
	got[0].Asset = common.Address{}
	assert.Equal(t, usdc, h.eng.WithdrawRoutes()[0].Asset)
}

func TestWithdrawPullsLiquidityThroughRoutes(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = h.eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(900)),
	})
	require.NoError(t, err)
	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
		{Fuse: h.supplyFuse.Address(), Asset: usdc},
	}))

	// Idle is 100; the 500 withdrawal exits exactly the 400 deficit.
	shares, err := h.eng.Withdraw(context.Background(), depositor, usdcAmount(500))
	require.NoError(t, err)
	assert.Equal(t, wadAmount(500), shares)

	assert.True(t, h.ledger.BalanceOf(usdc).IsZero())
	position, err := h.pool.SupplyOf(context.Background(), vaultAddr, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdcAmount(500), position)

	// The route exit touched the market, so its cached total is fresh.
	assert.Equal(t, wadAmount(500), h.ledger.MarketTotal(marketID))
}

func TestWithdrawSkipsRouteWhenIdleCovers(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = h.eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(600)),
	})
	require.NoError(t, err)
	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
		{Fuse: h.supplyFuse.Address(), Asset: usdc},
	}))

	_, err = h.eng.Withdraw(context.Background(), depositor, usdcAmount(300))
	require.NoError(t, err)

	// Fully served from idle; the pool position is untouched.
	position, err := h.pool.SupplyOf(context.Background(), vaultAddr, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdcAmount(600), position)
	assert.Equal(t, usdcAmount(100), h.ledger.BalanceOf(usdc))
}

func TestWithdrawFailsWhenRoutesExhausted(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = h.eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(900)),
	})
	require.NoError(t, err)
	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
		{Fuse: h.supplyFuse.Address(), Asset: usdc},
	}))

	// Drain the venue behind the vault's back; the cached total still says
	// 900, but only 200 is actually recoverable.
	_, err = h.pool.Withdraw(context.Background(), vaultAddr, usdc, usdcAmount(700))
	require.NoError(t, err)

	_, err = h.eng.Withdraw(context.Background(), depositor, usdcAmount(800))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// All-or-nothing: the partial exit unwound with the rest, on the
	// ledger and on the venue.
	assert.Equal(t, usdcAmount(100), h.ledger.BalanceOf(usdc))
	assert.Equal(t, wadAmount(1000), h.ledger.SharesOf(depositor))
	position, err := h.pool.SupplyOf(context.Background(), vaultAddr, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdcAmount(200), position)
}

func TestWithdrawIgnoresRoutesForOtherAssets(t *testing.T) {
	h := newEngineHarness(t, types.FeeConfig{})

	_, err := h.eng.Deposit(context.Background(), depositor, usdcAmount(1000))
	require.NoError(t, err)
	_, err = h.eng.Execute(context.Background(), alpha, []types.FuseAction{
		enterAction(h.supplyFuse.Address(), usdc, usdcAmount(900)),
	})
	require.NoError(t, err)

	// The only route is keyed to a different asset, so it cannot serve
	// base-asset withdrawals.
	dai := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	require.NoError(t, h.eng.SetWithdrawRoutes(atomist, []types.WithdrawRoute{
		{Fuse: h.supplyFuse.Address(), Asset: dai},
	}))

	_, err = h.eng.Withdraw(context.Background(), depositor, usdcAmount(500))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	position, err := h.pool.SupplyOf(context.Background(), vaultAddr, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdcAmount(900), position)
}

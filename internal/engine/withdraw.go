/*

Instant-withdrawal path. When a withdrawal exceeds idle vault balance, the
engine walks the governance-configured ordered route list and exits each
fuse in turn until the shortfall is covered or the list is exhausted.
Exhaustion without sufficient liquidity fails the whole withdrawal; there is
no partial payout.

*/

package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"

	sdkmath "cosmossdk.io/math"
)

// SetWithdrawRoutes replaces the instant-withdrawal route list. Atomist only.
// Every route's fuse must already be whitelisted.
func (e *Engine) SetWithdrawRoutes(caller common.Address, routes []types.WithdrawRoute) error {
	if err := e.roles.Require(caller, accesscontrol.RoleAtomist); err != nil {
		return err
	}
	for i, route := range routes {
		if route.Asset == (common.Address{}) {
			return fmt.Errorf("%w: route %d asset", vault.ErrZeroAddress, i)
		}
		fuse, err := e.fuses.Get(route.Fuse)
		if err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if _, ok := fuse.(connectors.EnterExitFuse); !ok {
			return fmt.Errorf("route %d: %w: %s cannot exit", i, ErrFuseCapability, fuse.Name())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.withdrawRoutes = append([]types.WithdrawRoute(nil), routes...)

	e.log.Info().Int("routes", len(routes)).Msg("Instant-withdrawal routes configured")
	return nil
}

// WithdrawRoutes returns a copy of the configured route list.
func (e *Engine) WithdrawRoutes() []types.WithdrawRoute {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.WithdrawRoute(nil), e.withdrawRoutes...)
}

// ensureLiquidity frees base-asset liquidity until the idle balance covers
// assets, exiting configured routes in order. It returns the reconciled
// totals of the touched markets for the caller to persist on commit.
// Callers hold e.mu and roll the ledger back on error.
func (e *Engine) ensureLiquidity(ctx context.Context, assets sdkmath.Int) ([]types.MarketTotal, error) {
	base := e.ledger.BaseAsset()
	if e.ledger.BalanceOf(base).GTE(assets) {
		return nil, nil
	}

	ex := vault.NewExecution(e.ledger, e.markets, e.rewardsManager)
	for _, route := range e.withdrawRoutes {
		idle := e.ledger.BalanceOf(base)
		if idle.GTE(assets) {
			break
		}
		if route.Asset != base {
			continue
		}
		deficit := assets.Sub(idle)

		fuse, err := e.fuses.Get(route.Fuse)
		if err != nil {
			return nil, fmt.Errorf("withdrawal route fuse lookup failed: %w", err)
		}
		eef, ok := fuse.(connectors.EnterExitFuse)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot exit", ErrFuseCapability, fuse.Name())
		}

		// Exit clamps to the live position, so an over-ask against a
		// drained market is a harmless no-op and the walk continues.
		if _, err := eef.Exit(ctx, ex, types.ExitData{Asset: route.Asset, Amount: deficit}); err != nil {
			return nil, fmt.Errorf("withdrawal route exit via %s failed: %w", fuse.Name(), err)
		}
	}

	if e.ledger.BalanceOf(base).LT(assets) {
		return nil, fmt.Errorf("%w: need %s, idle %s after exhausting %d routes",
			ErrInsufficientLiquidity, assets, e.ledger.BalanceOf(base), len(e.withdrawRoutes))
	}

	// Exits changed market positions; refresh the touched caches so NAV
	// stays consistent with the protocols.
	totals, err := e.reconcileMarkets(ctx, ex.Touched())
	if err != nil {
		return nil, fmt.Errorf("post-withdrawal reconciliation failed: %w", err)
	}
	return totals, nil
}

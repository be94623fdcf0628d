/*

Vault Routing Engine. One Execute call runs an operator-supplied batch of
fuse actions in order against the vault ledger, then reconciles every
touched market through its balance fuse and recomputes total assets. The
whole batch is all-or-nothing: any failing action, reconciliation error or
negative aggregate rolls the ledger and every mutated external venue back to
their pre-batch snapshots, and reconciled market totals reach the persister
only after the batch commits.

Batches are serialized by a single mutex, mirroring the transaction-at-a-
time execution model the accounting invariants assume.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/balances"
	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/marketcfg"
	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/utils"
	"github.com/fusion-network/pvm/internal/vault"
)

// Error definitions for zero-tolerance error handling
var (
	ErrEmptyActions          = errors.New("action batch is empty")
	ErrEmptyMarkets          = errors.New("market id list is empty")
	ErrUnknownActionType     = errors.New("action type is not recognized")
	ErrActionDataMissing     = errors.New("action payload is missing")
	ErrFuseCapability        = errors.New("fuse does not support the requested action")
	ErrNegativeTotalAssets   = errors.New("aggregate total assets is negative")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for requested withdrawal")
	ErrNoSharePrice          = errors.New("share price is undefined")
)

// Persister receives write-through state from the engine. A nil persister
// disables persistence.
type Persister interface {
	SaveExecution(result types.ExecutionResult) error
	SaveMarketTotal(total types.MarketTotal) error
	SaveFeeState(state types.FeeState) error
}

// Config wires an Engine's collaborators.
type Config struct {
	Ledger         *vault.Ledger
	Roles          *accesscontrol.Registry
	Markets        *marketcfg.Store
	Fuses          *connectors.Registry
	BalanceFuses   *balances.Registry
	Prices         balances.PriceSource
	FeeConfig      types.FeeConfig
	// RestoredFeeState resumes accrual from a persisted record; nil starts
	// a fresh accrual window at the current high-water mark of 1:1.
	RestoredFeeState *types.FeeState
	RewardsManager   common.Address
	Persister        Persister
	// Clock overrides time.Now for fee accrual; nil uses the wall clock.
	Clock func() time.Time
}

// Engine is the vault routing engine.
type Engine struct {
	mu sync.Mutex

	ledger         *vault.Ledger
	roles          *accesscontrol.Registry
	markets        *marketcfg.Store
	fuses          *connectors.Registry
	balanceFuses   *balances.Registry
	prices         balances.PriceSource
	rewardsManager common.Address
	persister      Persister
	clock          func() time.Time

	feeConfig      types.FeeConfig
	feeState       types.FeeState
	withdrawRoutes []types.WithdrawRoute

	log zerolog.Logger
}

// NewEngine validates the wiring and creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}
	if cfg.Roles == nil {
		return nil, errors.New("role registry cannot be nil")
	}
	if cfg.Markets == nil {
		return nil, errors.New("market configuration store cannot be nil")
	}
	if cfg.Fuses == nil {
		return nil, errors.New("fuse registry cannot be nil")
	}
	if cfg.BalanceFuses == nil {
		return nil, errors.New("balance fuse registry cannot be nil")
	}
	if cfg.Prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		ledger:         cfg.Ledger,
		roles:          cfg.Roles,
		markets:        cfg.Markets,
		fuses:          cfg.Fuses,
		balanceFuses:   cfg.BalanceFuses,
		prices:         cfg.Prices,
		rewardsManager: cfg.RewardsManager,
		persister:      cfg.Persister,
		clock:          clock,
		feeConfig:      cfg.FeeConfig,
		feeState: types.FeeState{
			LastAccrual:             clock().UTC(),
			HighWaterMarkWAD:        utils.Pow10(utils.WadDecimals),
			ManagementSharesMinted:  sdkmath.ZeroInt(),
			PerformanceSharesMinted: sdkmath.ZeroInt(),
		},
		log: logger.GetForComponent("routing_engine"),
	}
	if cfg.RestoredFeeState != nil {
		e.feeState = *cfg.RestoredFeeState
	}
	return e, nil
}

// Execute runs an ordered batch of fuse actions. Caller must hold the Alpha
// role; the vault must not be paused. All-or-nothing semantics.
func (e *Engine) Execute(ctx context.Context, caller common.Address, actions []types.FuseAction) (*types.ExecutionResult, error) {
	// Authorization precedes every other check and any state change.
	if err := e.roles.Require(caller, accesscontrol.RoleAlpha); err != nil {
		return nil, err
	}
	if e.roles.Paused() {
		return nil, accesscontrol.ErrVaultPaused
	}
	if len(actions) == 0 {
		return nil, ErrEmptyActions
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.clock().UTC()
	snap := e.ledger.Snapshot()
	venues := e.snapshotVenues()
	ex := vault.NewExecution(e.ledger, e.markets, e.rewardsManager)

	receipts := make([]types.ActionReceipt, 0, len(actions))
	for i, action := range actions {
		receipt, err := e.dispatch(ctx, ex, action)
		if err != nil {
			e.ledger.Restore(snap)
			restoreVenues(venues)
			executionFailures.Inc()
			return nil, fmt.Errorf("action %d (%s) failed, batch rolled back: %w", i, action.Type, err)
		}
		receipts = append(receipts, receipt)
	}

	touched := ex.Touched()
	totals, err := e.reconcileMarkets(ctx, touched)
	if err != nil {
		e.ledger.Restore(snap)
		restoreVenues(venues)
		executionFailures.Inc()
		return nil, fmt.Errorf("reconciliation failed, batch rolled back: %w", err)
	}

	total, err := e.totalAssets(ctx)
	if err != nil {
		e.ledger.Restore(snap)
		restoreVenues(venues)
		executionFailures.Inc()
		return nil, fmt.Errorf("total assets check failed, batch rolled back: %w", err)
	}

	// The batch is now committed; flush the buffered market totals.
	e.persistMarketTotals(totals)

	result := &types.ExecutionResult{
		ExecutionID:    uuid.New(),
		Caller:         caller,
		Receipts:       receipts,
		MarketsTouched: touched,
		TotalAssetsWAD: total,
		StartedAt:      started,
		FinishedAt:     e.clock().UTC(),
	}
	e.persistExecution(result)

	executionsTotal.Inc()
	observeTotalAssets(total)

	e.log.Info().
		Str("execution_id", result.ExecutionID.String()).
		Str("caller", caller.Hex()).
		Int("actions", len(actions)).
		Int("markets_touched", len(touched)).
		Str("total_assets_wad", total.String()).
		Msg("Execution batch committed")

	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, ex *vault.Execution, action types.FuseAction) (types.ActionReceipt, error) {
	fuse, err := e.fuses.Get(action.Fuse)
	if err != nil {
		return types.ActionReceipt{}, err
	}

	switch action.Type {
	case types.ActionEnter:
		eef, ok := fuse.(connectors.EnterExitFuse)
		if !ok {
			return types.ActionReceipt{}, fmt.Errorf("%w: %s cannot enter", ErrFuseCapability, fuse.Name())
		}
		if action.Enter == nil {
			return types.ActionReceipt{}, fmt.Errorf("%w: enter payload", ErrActionDataMissing)
		}
		return eef.Enter(ctx, ex, *action.Enter)
	case types.ActionExit:
		eef, ok := fuse.(connectors.EnterExitFuse)
		if !ok {
			return types.ActionReceipt{}, fmt.Errorf("%w: %s cannot exit", ErrFuseCapability, fuse.Name())
		}
		if action.Exit == nil {
			return types.ActionReceipt{}, fmt.Errorf("%w: exit payload", ErrActionDataMissing)
		}
		return eef.Exit(ctx, ex, *action.Exit)
	case types.ActionClaim:
		cf, ok := fuse.(connectors.ClaimFuse)
		if !ok {
			return types.ActionReceipt{}, fmt.Errorf("%w: %s cannot claim", ErrFuseCapability, fuse.Name())
		}
		return cf.Claim(ctx, ex)
	default:
		return types.ActionReceipt{}, fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}
}

// venueSnapshot pairs an external venue with its captured state.
type venueSnapshot struct {
	venue protocols.Snapshotter
	state protocols.Snapshot
}

// snapshotVenues captures each registered fuse's backing venue once. Fuses
// may share a venue, so capture is deduplicated by identity.
func (e *Engine) snapshotVenues() []venueSnapshot {
	seen := make(map[protocols.Snapshotter]struct{})
	var snaps []venueSnapshot
	for _, fuse := range e.fuses.List() {
		backed, ok := fuse.(connectors.VenueBacked)
		if !ok {
			continue
		}
		venue := backed.Venue()
		if venue == nil {
			continue
		}
		if _, dup := seen[venue]; dup {
			continue
		}
		seen[venue] = struct{}{}
		snaps = append(snaps, venueSnapshot{venue: venue, state: venue.Snapshot()})
	}
	return snaps
}

func restoreVenues(snaps []venueSnapshot) {
	for _, s := range snaps {
		s.venue.Restore(s.state)
	}
}

// reconcileMarkets overwrites the cached total of every listed market with a
// fresh balance-fuse valuation and returns the updated records. Persistence
// is deferred to the caller so totals from a batch that later rolls back
// never reach the database.
func (e *Engine) reconcileMarkets(ctx context.Context, marketIDs []types.MarketID) ([]types.MarketTotal, error) {
	start := e.clock()
	totals := make([]types.MarketTotal, 0, len(marketIDs))
	for _, id := range marketIDs {
		fuseAddr := e.markets.BalanceFuse(id)
		if fuseAddr == (common.Address{}) {
			return nil, fmt.Errorf("%w: market %d", balances.ErrNoBalanceFuse, id)
		}
		fuse, err := e.balanceFuses.Get(fuseAddr)
		if err != nil {
			return nil, fmt.Errorf("balance fuse lookup failed for market %d: %w", id, err)
		}
		value, _, err := fuse.BalanceOfMarket(ctx, e.ledger.Address())
		if err != nil {
			return nil, fmt.Errorf("balance refresh failed for market %d: %w", id, err)
		}
		if err := e.ledger.SetMarketTotal(id, value); err != nil {
			return nil, err
		}
		totals = append(totals, types.MarketTotal{ID: id, ValueWAD: value, UpdatedAt: e.clock().UTC()})
	}
	reconcileDuration.Observe(e.clock().Sub(start).Seconds())
	return totals, nil
}

// persistMarketTotals flushes reconciled totals after the owning operation
// committed. Like receipt persistence, a write failure must not unwind
// committed in-memory state.
func (e *Engine) persistMarketTotals(totals []types.MarketTotal) {
	if e.persister == nil {
		return
	}
	for _, total := range totals {
		if err := e.persister.SaveMarketTotal(total); err != nil {
			e.log.Error().Err(err).Uint64("market_id", uint64(total.ID)).Msg("Failed to persist market total")
		}
	}
}

// RefreshMarkets recomputes the cached totals of the given markets on
// demand. Alpha or Atomist only.
func (e *Engine) RefreshMarkets(ctx context.Context, caller common.Address, marketIDs []types.MarketID) error {
	if !e.roles.HasRole(caller, accesscontrol.RoleAlpha) && !e.roles.HasRole(caller, accesscontrol.RoleAtomist) {
		return fmt.Errorf("%w: account %s, role %s", accesscontrol.ErrUnauthorized, caller.Hex(), accesscontrol.RoleAlpha)
	}
	if len(marketIDs) == 0 {
		return ErrEmptyMarkets
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	totals, err := e.reconcileMarkets(ctx, marketIDs)
	if err != nil {
		return err
	}
	e.persistMarketTotals(totals)
	return nil
}

// totalAssets aggregates all cached market totals plus the idle base-asset
// balance, WAD-denominated. A negative aggregate fails loudly.
func (e *Engine) totalAssets(ctx context.Context) (sdkmath.Int, error) {
	sum := e.ledger.SumMarketTotals()

	idle := e.ledger.BalanceOf(e.ledger.BaseAsset())
	if idle.IsPositive() {
		price, err := e.prices.GetAssetPrice(ctx, e.ledger.BaseAsset())
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("idle balance valuation failed: %w", err)
		}
		idleWAD, err := utils.ValueToWad(idle, e.ledger.BaseDecimals(), price, e.prices.Decimals())
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("idle balance normalization failed: %w", err)
		}
		sum = sum.Add(idleWAD)
	}

	total, err := utils.ToUnsigned(sum)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNegativeTotalAssets, sum)
	}
	return total, nil
}

// TotalAssets returns the vault's aggregate WAD value for share pricing.
func (e *Engine) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalAssets(ctx)
}

// Summary builds the reader-facing aggregate view.
func (e *Engine) Summary(ctx context.Context) (types.VaultSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	total, err := e.totalAssets(ctx)
	if err != nil {
		return types.VaultSummary{}, err
	}
	return types.VaultSummary{
		BaseAsset:      e.ledger.BaseAsset(),
		TotalAssetsWAD: total,
		IdleBalance:    e.ledger.BalanceOf(e.ledger.BaseAsset()),
		TotalShares:    e.ledger.TotalShares(),
		MarketTotals:   e.ledger.MarketTotals(),
		Timestamp:      e.clock().UTC(),
	}, nil
}

// FeeState returns a copy of the current accrual record.
func (e *Engine) FeeState() types.FeeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeState
}

func (e *Engine) persistExecution(result *types.ExecutionResult) {
	if e.persister == nil {
		return
	}
	if err := e.persister.SaveExecution(*result); err != nil {
		// Receipt persistence is observability, not accounting; a failure
		// must not unwind a committed batch.
		e.log.Error().Err(err).Str("execution_id", result.ExecutionID.String()).Msg("Failed to persist execution result")
	}
}

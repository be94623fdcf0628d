/*

The canonical supply fuse shape shared by every lending-protocol variant.
Enter supplies idle vault tokens into the bound market; Exit withdraws,
clamping a requested amount that exceeds the live position to the maximum
available instead of failing. Exits against an empty position no-op, so a
repeated over-sized exit is safe.

*/

package connectors

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"
)

// LendingFuse adapts one external lending market to the fuse contract. It is
// stateless apart from its immutable construction parameters.
type LendingFuse struct {
	name     string
	version  string
	address  common.Address
	marketID types.MarketID
	pool     protocols.LendingMarket
}

// NewLendingFuse binds a lending pool to a market identifier.
func NewLendingFuse(name, version string, marketID types.MarketID, pool protocols.LendingMarket) (*LendingFuse, error) {
	if name == "" {
		return nil, fmt.Errorf("fuse name cannot be empty")
	}
	if version == "" {
		return nil, fmt.Errorf("fuse version cannot be empty")
	}
	if pool == nil {
		return nil, fmt.Errorf("lending pool cannot be nil")
	}
	return &LendingFuse{
		name:     name,
		version:  version,
		address:  DeriveFuseAddress(name, version),
		marketID: marketID,
		pool:     pool,
	}, nil
}

func (f *LendingFuse) Address() common.Address  { return f.address }
func (f *LendingFuse) Name() string             { return f.name }
func (f *LendingFuse) Version() string          { return f.version }
func (f *LendingFuse) MarketID() types.MarketID { return f.marketID }

// Venue implements VenueBacked for batch rollback of pool state.
func (f *LendingFuse) Venue() protocols.Snapshotter { return f.pool }

func (f *LendingFuse) logger() zerolog.Logger {
	return logger.GetForComponent("fuse_" + f.name)
}

// Enter supplies data.Amount of data.Asset into the bound market.
func (f *LendingFuse) Enter(ctx context.Context, ex *vault.Execution, data types.EnterData) (types.ActionReceipt, error) {
	if data.Amount.IsNil() || data.Amount.IsNegative() {
		return types.ActionReceipt{}, fmt.Errorf("%w: enter amount %v", ErrInvalidAmount, data.Amount)
	}

	// Authorization before any state change or external interaction.
	substrate := types.SubstrateFromAsset(data.Asset)
	if !ex.IsGranted(f.marketID, substrate) {
		return types.ActionReceipt{}, fmt.Errorf("%w: enter, asset %s, market %d", ErrUnsupportedAsset, data.Asset.Hex(), f.marketID)
	}

	ex.Touch(f.marketID)

	if data.Amount.IsZero() {
		return f.receipt("enter", data.Asset, sdkmath.ZeroInt()), nil
	}

	positionBefore, err := f.pool.SupplyOf(ctx, ex.Account(), data.Asset)
	if err != nil {
		return types.ActionReceipt{}, fmt.Errorf("position query failed on enter: %w", err)
	}

	if err := ex.Debit(data.Asset, data.Amount); err != nil {
		return types.ActionReceipt{}, fmt.Errorf("enter debit failed: %w", err)
	}
	if err := f.pool.Supply(ctx, ex.Account(), data.Asset, data.Amount); err != nil {
		return types.ActionReceipt{}, fmt.Errorf("supply to %s failed: %w", f.pool.Name(), err)
	}

	if !data.MinAmountOut.IsNil() && data.MinAmountOut.IsPositive() {
		positionAfter, err := f.pool.SupplyOf(ctx, ex.Account(), data.Asset)
		if err != nil {
			return types.ActionReceipt{}, fmt.Errorf("position query failed after enter: %w", err)
		}
		received := positionAfter.Sub(positionBefore)
		if received.LT(data.MinAmountOut) {
			return types.ActionReceipt{}, fmt.Errorf("%w: received %s, minimum %s", ErrSlippageExceeded, received, data.MinAmountOut)
		}
	}

	log := f.logger()
	log.Info().
		Str("action", "enter").
		Str("version", f.version).
		Str("asset", data.Asset.Hex()).
		Str("amount", data.Amount.String()).
		Uint64("market_id", uint64(f.marketID)).
		Msg("Fuse enter executed")

	return f.receipt("enter", data.Asset, data.Amount), nil
}

// Exit withdraws up to data.Amount of data.Asset from the bound market. The
// actual withdrawable amount comes from the protocol's live position, never
// from the caller's figure: oversized requests clamp, empty positions no-op.
func (f *LendingFuse) Exit(ctx context.Context, ex *vault.Execution, data types.ExitData) (types.ActionReceipt, error) {
	if data.Amount.IsNil() || data.Amount.IsNegative() {
		return types.ActionReceipt{}, fmt.Errorf("%w: exit amount %v", ErrInvalidAmount, data.Amount)
	}

	substrate := types.SubstrateFromAsset(data.Asset)
	if !ex.IsGranted(f.marketID, substrate) {
		return types.ActionReceipt{}, fmt.Errorf("%w: exit, asset %s, market %d", ErrUnsupportedAsset, data.Asset.Hex(), f.marketID)
	}

	ex.Touch(f.marketID)

	if data.Amount.IsZero() {
		return f.receipt("exit", data.Asset, sdkmath.ZeroInt()), nil
	}

	position, err := f.pool.SupplyOf(ctx, ex.Account(), data.Asset)
	if err != nil {
		return types.ActionReceipt{}, fmt.Errorf("position query failed on exit: %w", err)
	}
	if position.IsZero() {
		return f.receipt("exit", data.Asset, sdkmath.ZeroInt()), nil
	}

	toWithdraw := data.Amount
	if toWithdraw.GT(position) {
		toWithdraw = position
	}

	withdrawn, err := f.pool.Withdraw(ctx, ex.Account(), data.Asset, toWithdraw)
	if err != nil {
		return types.ActionReceipt{}, fmt.Errorf("withdraw from %s failed: %w", f.pool.Name(), err)
	}
	if withdrawn.IsNil() || withdrawn.IsNegative() {
		return types.ActionReceipt{}, fmt.Errorf("%w: pool %s reported withdrawn %v", ErrInvalidAmount, f.pool.Name(), withdrawn)
	}
	if err := ex.Credit(data.Asset, withdrawn); err != nil {
		return types.ActionReceipt{}, fmt.Errorf("exit credit failed: %w", err)
	}

	log := f.logger()
	log.Info().
		Str("action", "exit").
		Str("version", f.version).
		Str("asset", data.Asset.Hex()).
		Str("requested", data.Amount.String()).
		Str("withdrawn", withdrawn.String()).
		Uint64("market_id", uint64(f.marketID)).
		Msg("Fuse exit executed")

	return f.receipt("exit", data.Asset, withdrawn), nil
}

func (f *LendingFuse) receipt(action string, asset common.Address, amount sdkmath.Int) types.ActionReceipt {
	return types.ActionReceipt{
		Action:    action,
		Fuse:      f.address,
		FuseName:  f.name,
		Version:   f.version,
		MarketID:  f.marketID,
		Asset:     asset,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
}

/*

The vault ledger owns every piece of mutable vault state: idle token
balances, the ERC-4626 share register and the per-market cached totals.
Fuses never hold state of their own; they mutate the ledger through the
Execution handle. Snapshot/Restore gives the routing engine its all-or-
nothing batch semantics.

*/

package vault

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrInsufficientShares  = errors.New("insufficient share balance")
	ErrNegativeAmount      = errors.New("amount is negative")
	ErrNilAmount           = errors.New("amount is nil")
	ErrZeroAddress         = errors.New("zero address is not supported")
)

var ledgerLogger = logger.GetForComponent("vault_ledger")

// Transfer records one outgoing token transfer (e.g. rewards forwarded to
// the claim manager).
type Transfer struct {
	Asset     common.Address `json:"asset"`
	Amount    sdkmath.Int    `json:"amount"`
	Recipient common.Address `json:"recipient"`
	Timestamp time.Time      `json:"timestamp"`
}

// Ledger is the vault's owned mutable state.
type Ledger struct {
	mu sync.RWMutex

	address      common.Address
	baseAsset    common.Address
	baseDecimals int

	balances      map[common.Address]sdkmath.Int
	shares        map[common.Address]sdkmath.Int
	totalShares   sdkmath.Int
	marketTotals  map[types.MarketID]sdkmath.Int
	marketUpdated map[types.MarketID]time.Time
	transfersOut  []Transfer
}

// NewLedger creates an empty ledger for the given vault identity and
// underlying asset.
func NewLedger(address, baseAsset common.Address, baseDecimals int) (*Ledger, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault address", ErrZeroAddress)
	}
	if baseAsset == (common.Address{}) {
		return nil, fmt.Errorf("%w: base asset", ErrZeroAddress)
	}
	if baseDecimals < 0 || baseDecimals > 18 {
		return nil, fmt.Errorf("base asset decimals out of range: %d", baseDecimals)
	}
	return &Ledger{
		address:       address,
		baseAsset:     baseAsset,
		baseDecimals:  baseDecimals,
		balances:      make(map[common.Address]sdkmath.Int),
		shares:        make(map[common.Address]sdkmath.Int),
		totalShares:   sdkmath.ZeroInt(),
		marketTotals:  make(map[types.MarketID]sdkmath.Int),
		marketUpdated: make(map[types.MarketID]time.Time),
	}, nil
}

// Address is the vault's account identity against external protocols.
func (l *Ledger) Address() common.Address { return l.address }

// BaseAsset is the vault's underlying ERC-20 asset.
func (l *Ledger) BaseAsset() common.Address { return l.baseAsset }

// BaseDecimals is the underlying asset's decimal precision.
func (l *Ledger) BaseDecimals() int { return l.baseDecimals }

func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return ErrNilAmount
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// BalanceOf returns the idle balance held in asset.
func (l *Ledger) BalanceOf(asset common.Address) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(asset)
}

func (l *Ledger) balanceLocked(asset common.Address) sdkmath.Int {
	if bal, ok := l.balances[asset]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// Credit adds amount of asset to the idle balance.
func (l *Ledger) Credit(asset common.Address, amount sdkmath.Int) error {
	if asset == (common.Address{}) {
		return fmt.Errorf("%w: asset", ErrZeroAddress)
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset] = l.balanceLocked(asset).Add(amount)
	return nil
}

// Debit removes amount of asset from the idle balance, failing on shortfall.
func (l *Ledger) Debit(asset common.Address, amount sdkmath.Int) error {
	if asset == (common.Address{}) {
		return fmt.Errorf("%w: asset", ErrZeroAddress)
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balanceLocked(asset)
	if current.LT(amount) {
		return fmt.Errorf("%w: asset %s, have %s, need %s", ErrInsufficientBalance, asset.Hex(), current, amount)
	}
	l.balances[asset] = current.Sub(amount)
	return nil
}

// TransferOut debits asset and records the outgoing transfer to recipient.
func (l *Ledger) TransferOut(asset common.Address, amount sdkmath.Int, recipient common.Address) error {
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	if err := l.Debit(asset, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfersOut = append(l.transfersOut, Transfer{
		Asset:     asset,
		Amount:    amount,
		Recipient: recipient,
		Timestamp: time.Now().UTC(),
	})
	ledgerLogger.Debug().
		Str("asset", asset.Hex()).
		Str("amount", amount.String()).
		Str("recipient", recipient.Hex()).
		Msg("Transfer out recorded")
	return nil
}

// TransfersOut returns the outgoing transfer log.
func (l *Ledger) TransfersOut() []Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transfer, len(l.transfersOut))
	copy(out, l.transfersOut)
	return out
}

// SharesOf returns account's share balance.
func (l *Ledger) SharesOf(account common.Address) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.shares[account]; ok {
		return s
	}
	return sdkmath.ZeroInt()
}

// TotalShares returns the total shares outstanding.
func (l *Ledger) TotalShares() sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalShares
}

// MintShares mints amount shares to account.
func (l *Ledger) MintShares(account common.Address, amount sdkmath.Int) error {
	if account == (common.Address{}) {
		return fmt.Errorf("%w: share account", ErrZeroAddress)
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := sdkmath.ZeroInt()
	if s, ok := l.shares[account]; ok {
		current = s
	}
	l.shares[account] = current.Add(amount)
	l.totalShares = l.totalShares.Add(amount)
	return nil
}

// BurnShares burns amount shares from account, failing on shortfall.
func (l *Ledger) BurnShares(account common.Address, amount sdkmath.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := sdkmath.ZeroInt()
	if s, ok := l.shares[account]; ok {
		current = s
	}
	if current.LT(amount) {
		return fmt.Errorf("%w: account %s, have %s, need %s", ErrInsufficientShares, account.Hex(), current, amount)
	}
	l.shares[account] = current.Sub(amount)
	l.totalShares = l.totalShares.Sub(amount)
	return nil
}

// SetMarketTotal overwrites marketID's cached total with a signed WAD value.
func (l *Ledger) SetMarketTotal(marketID types.MarketID, valueWAD sdkmath.Int) error {
	if valueWAD.IsNil() {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marketTotals[marketID] = valueWAD
	l.marketUpdated[marketID] = time.Now().UTC()
	return nil
}

// MarketTotal returns marketID's cached total (zero when never reconciled).
func (l *Ledger) MarketTotal(marketID types.MarketID) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.marketTotals[marketID]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// MarketTotals enumerates all cached totals in ascending market order.
func (l *Ledger) MarketTotals() []types.MarketTotal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.MarketTotal, 0, len(l.marketTotals))
	for id, v := range l.marketTotals {
		out = append(out, types.MarketTotal{ID: id, ValueWAD: v, UpdatedAt: l.marketUpdated[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SumMarketTotals returns the signed sum of all cached market totals.
func (l *Ledger) SumMarketTotals() sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sum := sdkmath.ZeroInt()
	for _, v := range l.marketTotals {
		sum = sum.Add(v)
	}
	return sum
}

// Snapshot captures a deep copy of all mutable state for batch rollback.
type Snapshot struct {
	balances      map[common.Address]sdkmath.Int
	shares        map[common.Address]sdkmath.Int
	totalShares   sdkmath.Int
	marketTotals  map[types.MarketID]sdkmath.Int
	marketUpdated map[types.MarketID]time.Time
	transfersOut  []Transfer
}

// Snapshot captures the current ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := &Snapshot{
		balances:      make(map[common.Address]sdkmath.Int, len(l.balances)),
		shares:        make(map[common.Address]sdkmath.Int, len(l.shares)),
		totalShares:   l.totalShares,
		marketTotals:  make(map[types.MarketID]sdkmath.Int, len(l.marketTotals)),
		marketUpdated: make(map[types.MarketID]time.Time, len(l.marketUpdated)),
		transfersOut:  make([]Transfer, len(l.transfersOut)),
	}
	for k, v := range l.balances {
		snap.balances[k] = v
	}
	for k, v := range l.shares {
		snap.shares[k] = v
	}
	for k, v := range l.marketTotals {
		snap.marketTotals[k] = v
	}
	for k, v := range l.marketUpdated {
		snap.marketUpdated[k] = v
	}
	copy(snap.transfersOut, l.transfersOut)
	return snap
}

// Restore rolls the ledger back to a previously captured snapshot.
func (l *Ledger) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[common.Address]sdkmath.Int, len(snap.balances))
	l.shares = make(map[common.Address]sdkmath.Int, len(snap.shares))
	l.marketTotals = make(map[types.MarketID]sdkmath.Int, len(snap.marketTotals))
	l.marketUpdated = make(map[types.MarketID]time.Time, len(snap.marketUpdated))
	l.transfersOut = make([]Transfer, len(snap.transfersOut))
	for k, v := range snap.balances {
		l.balances[k] = v
	}
	for k, v := range snap.shares {
		l.shares[k] = v
	}
	for k, v := range snap.marketTotals {
		l.marketTotals[k] = v
	}
	for k, v := range snap.marketUpdated {
		l.marketUpdated[k] = v
	}
	l.totalShares = snap.totalShares
	copy(l.transfersOut, snap.transfersOut)
	ledgerLogger.Warn().Msg("Ledger state restored from snapshot")
}

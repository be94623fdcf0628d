/*

In-memory lending pool implementing the external-protocol collaborator
surface. Used by the dry-run mode in cmd/pvm and by tests: positions accrue
configurable yield so valuation paths see realistic drift instead of exact
round numbers.

*/

package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/protocols"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownAsset  = errors.New("asset is not listed on the pool")
	ErrInvalidAmount = errors.New("amount is invalid")
)

type positionKey struct {
	account common.Address
	asset   common.Address
}

// Pool is a simulated lending venue.
type Pool struct {
	mu sync.Mutex

	name     string
	decimals map[common.Address]int
	supplies map[positionKey]sdkmath.Int
	debts    map[positionKey]sdkmath.Int

	// instantYieldBps is credited on supply, mimicking the small positive
	// drift a live pool shows immediately after deposit.
	instantYieldBps int64
}

// NewPool creates a simulated pool listing the given assets.
func NewPool(name string, assetDecimals map[common.Address]int) (*Pool, error) {
	if name == "" {
		return nil, errors.New("pool name cannot be empty")
	}
	if len(assetDecimals) == 0 {
		return nil, errors.New("pool must list at least one asset")
	}
	decimals := make(map[common.Address]int, len(assetDecimals))
	for asset, dec := range assetDecimals {
		if dec < 0 || dec > 18 {
			return nil, fmt.Errorf("asset %s has invalid decimals %d", asset.Hex(), dec)
		}
		decimals[asset] = dec
	}
	return &Pool{
		name:     name,
		decimals: decimals,
		supplies: make(map[positionKey]sdkmath.Int),
		debts:    make(map[positionKey]sdkmath.Int),
	}, nil
}

// SetInstantYieldBps configures the drift credited on each supply.
func (p *Pool) SetInstantYieldBps(bps int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instantYieldBps = bps
}

// Name identifies the simulated venue.
func (p *Pool) Name() string { return p.name }

// Decimals implements the TokenMeta collaborator surface.
func (p *Pool) Decimals(asset common.Address) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dec, ok := p.decimals[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return dec, nil
}

// Supply deposits amount of asset for account.
func (p *Pool) Supply(_ context.Context, account, asset common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: supply %v", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.decimals[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}

	credited := amount
	if p.instantYieldBps > 0 {
		drift := amount.Mul(sdkmath.NewInt(p.instantYieldBps)).Quo(sdkmath.NewInt(10_000))
		credited = credited.Add(drift)
	}

	key := positionKey{account: account, asset: asset}
	current := sdkmath.ZeroInt()
	if s, ok := p.supplies[key]; ok {
		current = s
	}
	p.supplies[key] = current.Add(credited)
	return nil
}

// Withdraw redeems up to amount of asset for account and returns the amount
// actually withdrawn.
func (p *Pool) Withdraw(_ context.Context, account, asset common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: withdraw %v", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.decimals[asset]; !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}

	key := positionKey{account: account, asset: asset}
	current := sdkmath.ZeroInt()
	if s, ok := p.supplies[key]; ok {
		current = s
	}

	withdrawn := amount
	if withdrawn.GT(current) {
		withdrawn = current
	}
	p.supplies[key] = current.Sub(withdrawn)
	return withdrawn, nil
}

// SupplyOf returns account's supply position in asset.
func (p *Pool) SupplyOf(_ context.Context, account, asset common.Address) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.decimals[asset]; !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	if s, ok := p.supplies[positionKey{account: account, asset: asset}]; ok {
		return s, nil
	}
	return sdkmath.ZeroInt(), nil
}

// DebtOf returns account's debt in asset.
func (p *Pool) DebtOf(_ context.Context, account, asset common.Address) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.decimals[asset]; !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	if d, ok := p.debts[positionKey{account: account, asset: asset}]; ok {
		return d, nil
	}
	return sdkmath.ZeroInt(), nil
}

// SetDebt forces a debt position, for exercising net-borrow valuation.
func (p *Pool) SetDebt(account, asset common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: debt %v", ErrInvalidAmount, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.decimals[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	p.debts[positionKey{account: account, asset: asset}] = amount
	return nil
}

// poolSnapshot is a deep copy of the pool's mutable state.
type poolSnapshot struct {
	supplies map[positionKey]sdkmath.Int
	debts    map[positionKey]sdkmath.Int
}

// Snapshot implements protocols.Snapshotter.
func (p *Pool) Snapshot() protocols.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := &poolSnapshot{
		supplies: make(map[positionKey]sdkmath.Int, len(p.supplies)),
		debts:    make(map[positionKey]sdkmath.Int, len(p.debts)),
	}
	for key, amount := range p.supplies {
		snap.supplies[key] = amount
	}
	for key, amount := range p.debts {
		snap.debts[key] = amount
	}
	return snap
}

// Restore implements protocols.Snapshotter. A snapshot not produced by this
// pool's Snapshot is ignored.
func (p *Pool) Restore(snapshot protocols.Snapshot) {
	snap, ok := snapshot.(*poolSnapshot)
	if !ok || snap == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supplies = make(map[positionKey]sdkmath.Int, len(snap.supplies))
	p.debts = make(map[positionKey]sdkmath.Int, len(snap.debts))
	for key, amount := range snap.supplies {
		p.supplies[key] = amount
	}
	for key, amount := range snap.debts {
		p.debts[key] = amount
	}
}

// AccrueYield grows every supply position by bps, simulating interest.
func (p *Pool) AccrueYield(bps int64) {
	if bps <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	factor := sdkmath.NewInt(bps)
	for key, supply := range p.supplies {
		p.supplies[key] = supply.Add(supply.Mul(factor).Quo(sdkmath.NewInt(10_000)))
	}
}

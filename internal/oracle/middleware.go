/*

Price Oracle Middleware: maps an asset address to its configured price
source, falls back to a registry aggregator when present, and normalizes
every answer to USD with 8-decimal fixed point. A source reporting a
non-positive price is a fatal valuation error, never a zero substitute: a
zero price flowing into NAV would misprice shares.

*/

package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnsupportedAsset      = errors.New("no price source configured for asset")
	ErrUnexpectedPriceResult = errors.New("price source returned a non-positive price")
	ErrEmptyAssets           = errors.New("assets array is empty")
	ErrArrayLengthMismatch   = errors.New("paired arrays differ in length")
	ErrZeroAddress           = errors.New("zero address is not supported")
)

var oracleLogger = logger.GetForComponent("price_oracle")

// USDBase is the conventional base-currency sentinel address (Chainlink's
// USD denomination constant).
var USDBase = common.HexToAddress("0x0000000000000000000000000000000000000348")

// Middleware resolves asset prices through configured sources with an
// optional registry fallback.
type Middleware struct {
	mu       sync.RWMutex
	sources  map[common.Address]PriceFeed
	registry FeedRegistry // may be nil
	roles    *accesscontrol.Registry
}

// NewMiddleware creates a middleware with no configured sources. registry
// may be nil to disable fallback lookups.
func NewMiddleware(roles *accesscontrol.Registry, registry FeedRegistry) (*Middleware, error) {
	if roles == nil {
		return nil, errors.New("role registry cannot be nil")
	}
	return &Middleware{
		sources:  make(map[common.Address]PriceFeed),
		registry: registry,
		roles:    roles,
	}, nil
}

// SetAssetSources configures price sources for paired assets. Caller must
// hold the Atomist role. Arrays must be non-empty and of equal length.
func (m *Middleware) SetAssetSources(caller common.Address, assets []common.Address, sources []PriceFeed) error {
	if err := m.roles.Require(caller, accesscontrol.RoleAtomist); err != nil {
		return err
	}
	if len(assets) == 0 {
		return ErrEmptyAssets
	}
	if len(assets) != len(sources) {
		return fmt.Errorf("%w: %d assets, %d sources", ErrArrayLengthMismatch, len(assets), len(sources))
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return fmt.Errorf("%w: asset at index %d", ErrZeroAddress, i)
		}
		if sources[i] == nil {
			return fmt.Errorf("source for asset %s is nil", asset.Hex())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, asset := range assets {
		m.sources[asset] = sources[i]
	}

	oracleLogger.Info().Int("count", len(assets)).Msg("Asset price sources configured")
	return nil
}

// GetAssetPrice resolves the USD price of asset, normalized to 8 decimals.
// Resolution order: configured source, then registry fallback, then
// ErrUnsupportedAsset.
func (m *Middleware) GetAssetPrice(ctx context.Context, asset common.Address) (sdkmath.Int, error) {
	if asset == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: asset", ErrZeroAddress)
	}

	m.mu.RLock()
	feed, ok := m.sources[asset]
	registry := m.registry
	m.mu.RUnlock()

	if !ok && registry != nil {
		feed, ok = registry.Feed(asset, USDBase)
	}
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset.Hex())
	}

	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("price lookup failed for %s: %w", asset.Hex(), err)
	}
	if round.Price.IsNil() || !round.Price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: asset %s, price %s", ErrUnexpectedPriceResult, asset.Hex(), round.Price)
	}

	price, err := utils.ScaleDecimals(round.Price, feed.Decimals(), utils.PriceDecimals)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("price normalization failed for %s: %w", asset.Hex(), err)
	}
	// Downscaling a positive answer below 1e-8 truncates to zero; treat it
	// the same as a non-positive source answer.
	if !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: asset %s, normalized price %s", ErrUnexpectedPriceResult, asset.Hex(), price)
	}
	return price, nil
}

// GetAssetsPrices is the batch variant of GetAssetPrice. Empty input is
// rejected; output preserves input ordering.
func (m *Middleware) GetAssetsPrices(ctx context.Context, assets []common.Address) ([]sdkmath.Int, error) {
	if len(assets) == 0 {
		return nil, ErrEmptyAssets
	}
	out := make([]sdkmath.Int, len(assets))
	for i, asset := range assets {
		price, err := m.GetAssetPrice(ctx, asset)
		if err != nil {
			return nil, err
		}
		out[i] = price
	}
	return out, nil
}

// Decimals is the middleware's normalized price precision.
func (m *Middleware) Decimals() int {
	return utils.PriceDecimals
}

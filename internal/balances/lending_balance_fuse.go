/*

The canonical lending-market balance fuse: for every granted asset
substrate, net supply against debt, price the result through the oracle
middleware and accumulate the WAD values with a signed running total.
Scaling is multiply-then-divide so precision is never lost before the final
truncation.

*/

package balances

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/marketcfg"
	"github.com/fusion-network/pvm/internal/oracle"
	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/utils"
)

// LendingBalanceFuse values one lending market's positions.
type LendingBalanceFuse struct {
	name     string
	version  string
	address  common.Address
	marketID types.MarketID
	pool     protocols.LendingMarket
	meta     protocols.TokenMeta
	prices   PriceSource
	grants   SubstrateSource
}

// NewLendingBalanceFuse binds a lending pool's valuation to marketID.
func NewLendingBalanceFuse(name, version string, marketID types.MarketID, pool protocols.LendingMarket, meta protocols.TokenMeta, prices PriceSource, grants SubstrateSource) (*LendingBalanceFuse, error) {
	if name == "" {
		return nil, fmt.Errorf("balance fuse name cannot be empty")
	}
	if version == "" {
		return nil, fmt.Errorf("balance fuse version cannot be empty")
	}
	if pool == nil {
		return nil, fmt.Errorf("lending pool cannot be nil")
	}
	if meta == nil {
		return nil, fmt.Errorf("token meta resolver cannot be nil")
	}
	if prices == nil {
		return nil, fmt.Errorf("price source cannot be nil")
	}
	if grants == nil {
		return nil, fmt.Errorf("substrate source cannot be nil")
	}
	return &LendingBalanceFuse{
		name:     name,
		version:  version,
		address:  connectors.DeriveFuseAddress(name, version),
		marketID: marketID,
		pool:     pool,
		meta:     meta,
		prices:   prices,
		grants:   grants,
	}, nil
}

func (f *LendingBalanceFuse) Address() common.Address  { return f.address }
func (f *LendingBalanceFuse) Name() string             { return f.name }
func (f *LendingBalanceFuse) Version() string          { return f.version }
func (f *LendingBalanceFuse) MarketID() types.MarketID { return f.marketID }

// BalanceOfMarket values account's net positions across all granted asset
// substrates of the bound market.
func (f *LendingBalanceFuse) BalanceOfMarket(ctx context.Context, account common.Address) (sdkmath.Int, common.Address, error) {
	substrates, err := f.grants.GetSubstrates(f.marketID)
	if err != nil {
		// A market that was never configured holds nothing.
		if errors.Is(err, marketcfg.ErrUnsupportedMarket) {
			return sdkmath.ZeroInt(), oracle.USDBase, nil
		}
		return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("substrate enumeration failed: %w", err)
	}
	// Empty grant set short-circuits before any external call.
	if len(substrates) == 0 {
		return sdkmath.ZeroInt(), oracle.USDBase, nil
	}

	total := sdkmath.ZeroInt()
	for _, substrate := range substrates {
		if substrate.Kind() != types.SubstrateKindAsset {
			continue
		}
		asset := substrate.Address()

		supply, err := f.pool.SupplyOf(ctx, account, asset)
		if err != nil {
			return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("supply query failed for %s: %w", asset.Hex(), err)
		}
		debt, err := f.pool.DebtOf(ctx, account, asset)
		if err != nil {
			return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("debt query failed for %s: %w", asset.Hex(), err)
		}
		net := supply.Sub(debt)
		if net.IsZero() {
			continue
		}

		decimals, err := f.meta.Decimals(asset)
		if err != nil {
			return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("decimals lookup failed for %s: %w", asset.Hex(), err)
		}
		price, err := f.prices.GetAssetPrice(ctx, asset)
		if err != nil {
			return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("valuation failed for %s: %w", asset.Hex(), err)
		}

		value, err := utils.ValueToWad(net, decimals, price, f.prices.Decimals())
		if err != nil {
			return sdkmath.ZeroInt(), oracle.USDBase, fmt.Errorf("value normalization failed for %s: %w", asset.Hex(), err)
		}
		total = total.Add(value)
	}

	balanceLogger := logger.GetForComponent("balance_fuse_" + f.name)
	balanceLogger.Debug().
		Uint64("market_id", uint64(f.marketID)).
		Str("total_wad", total.String()).
		Int("substrates", len(substrates)).
		Msg("Market balance computed")

	return total, oracle.USDBase, nil
}

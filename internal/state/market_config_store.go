// ./internal/state/market_config_store.go
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/fusion-network/pvm/internal/types"
)

// MarketConfigPersister provides write-through persistence for the Market
// Configuration Store.
type MarketConfigPersister struct{}

// SaveSubstrates replaces the persisted grant list of marketID.
func (MarketConfigPersister) SaveSubstrates(marketID types.MarketID, substrates []types.Substrate) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin substrate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM market_substrates WHERE market_id = $1`, uint64(marketID)); err != nil {
		return fmt.Errorf("failed to clear substrates for market %d: %w", marketID, err)
	}
	insert := `
		INSERT INTO market_substrates (market_id, substrate, position)
		VALUES ($1, $2, $3);
	`
	for i, substrate := range substrates {
		if _, err := tx.Exec(insert, uint64(marketID), substrate.String(), i); err != nil {
			return fmt.Errorf("failed to insert substrate %s for market %d: %w", substrate, marketID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit substrates for market %d: %w", marketID, err)
	}

	log.Debug().
		Uint64("market_id", uint64(marketID)).
		Int("substrates", len(substrates)).
		Msg("Market substrates persisted")
	return nil
}

// SaveBalanceFuse upserts the designated balance fuse of marketID.
func (MarketConfigPersister) SaveBalanceFuse(marketID types.MarketID, fuse common.Address) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO market_balance_fuses (market_id, balance_fuse, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (market_id) DO UPDATE
		SET balance_fuse = EXCLUDED.balance_fuse, updated_at = CURRENT_TIMESTAMP;
	`
	if _, err := DB.Exec(query, uint64(marketID), fuse.Hex()); err != nil {
		return fmt.Errorf("failed to persist balance fuse for market %d: %w", marketID, err)
	}
	return nil
}

// LoadMarketConfigs rehydrates every persisted market configuration.
func LoadMarketConfigs() ([]types.MarketConfig, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT market_id, substrate
		FROM market_substrates
		ORDER BY market_id, position;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query market substrates: %w", err)
	}
	defer rows.Close()

	substratesByMarket := make(map[types.MarketID][]types.Substrate)
	for rows.Next() {
		var marketID uint64
		var raw string
		if err := rows.Scan(&marketID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan substrate row: %w", err)
		}
		substrate, err := types.ParseSubstrate(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt substrate for market %d: %w", marketID, err)
		}
		id := types.MarketID(marketID)
		substratesByMarket[id] = append(substratesByMarket[id], substrate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("substrate row iteration failed: %w", err)
	}

	fuseRows, err := DB.Query(`SELECT market_id, balance_fuse FROM market_balance_fuses;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance fuses: %w", err)
	}
	defer fuseRows.Close()

	fusesByMarket := make(map[types.MarketID]common.Address)
	for fuseRows.Next() {
		var marketID uint64
		var raw string
		if err := fuseRows.Scan(&marketID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan balance fuse row: %w", err)
		}
		fusesByMarket[types.MarketID(marketID)] = common.HexToAddress(raw)
	}
	if err := fuseRows.Err(); err != nil {
		return nil, fmt.Errorf("balance fuse row iteration failed: %w", err)
	}

	seen := make(map[types.MarketID]struct{})
	var configs []types.MarketConfig
	for id, subs := range substratesByMarket {
		seen[id] = struct{}{}
		configs = append(configs, types.MarketConfig{
			ID:          id,
			Substrates:  subs,
			BalanceFuse: fusesByMarket[id],
		})
	}
	for id, fuse := range fusesByMarket {
		if _, ok := seen[id]; ok {
			continue
		}
		configs = append(configs, types.MarketConfig{ID: id, BalanceFuse: fuse})
	}

	log.Info().Int("markets", len(configs)).Msg("Market configurations loaded from database")
	return configs, nil
}

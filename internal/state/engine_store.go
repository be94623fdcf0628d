// ./internal/state/engine_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/fusion-network/pvm/internal/types"
)

// EnginePersister provides write-through persistence for the routing engine.
type EnginePersister struct{}

// SaveExecution persists one committed execution batch.
func (EnginePersister) SaveExecution(result types.ExecutionResult) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	receiptsJSON, err := json.Marshal(result.Receipts)
	if err != nil {
		return fmt.Errorf("failed to marshal receipts: %w", err)
	}

	touched := make([]int64, len(result.MarketsTouched))
	for i, id := range result.MarketsTouched {
		touched[i] = int64(id)
	}

	query := `
		INSERT INTO execution_receipts (
			execution_id, caller, receipts, markets_touched,
			total_assets_wad, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = DB.Exec(
		query,
		result.ExecutionID, result.Caller.Hex(), receiptsJSON, pq.Array(touched),
		result.TotalAssetsWAD.String(), result.StartedAt, result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", result.ExecutionID, err)
	}

	log.Debug().
		Str("execution_id", result.ExecutionID.String()).
		Int("receipts", len(result.Receipts)).
		Msg("Execution persisted")
	return nil
}

// SaveMarketTotal upserts one market's cached total.
func (EnginePersister) SaveMarketTotal(total types.MarketTotal) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO market_totals (market_id, value_wad, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id) DO UPDATE
		SET value_wad = EXCLUDED.value_wad, updated_at = EXCLUDED.updated_at;
	`
	if _, err := DB.Exec(query, uint64(total.ID), total.ValueWAD.String(), total.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save total for market %d: %w", total.ID, err)
	}
	return nil
}

// SaveFeeState upserts the singleton fee accrual record.
func (EnginePersister) SaveFeeState(state types.FeeState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO fee_state (
			singleton_id, last_accrual, high_water_mark_wad,
			management_shares_minted, performance_shares_minted
		) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (singleton_id) DO UPDATE SET
			last_accrual = EXCLUDED.last_accrual,
			high_water_mark_wad = EXCLUDED.high_water_mark_wad,
			management_shares_minted = EXCLUDED.management_shares_minted,
			performance_shares_minted = EXCLUDED.performance_shares_minted;
	`
	_, err := DB.Exec(
		query,
		state.LastAccrual, state.HighWaterMarkWAD.String(),
		state.ManagementSharesMinted.String(), state.PerformanceSharesMinted.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fee state: %w", err)
	}
	return nil
}

// LoadMarketTotals rehydrates every persisted market total.
func LoadMarketTotals() ([]types.MarketTotal, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`SELECT market_id, value_wad, updated_at FROM market_totals ORDER BY market_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query market totals: %w", err)
	}
	defer rows.Close()

	var totals []types.MarketTotal
	for rows.Next() {
		var total types.MarketTotal
		var marketID uint64
		var valueRaw string
		if err := rows.Scan(&marketID, &valueRaw, &total.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market total row: %w", err)
		}
		value, ok := sdkmath.NewIntFromString(valueRaw)
		if !ok {
			return nil, fmt.Errorf("corrupt value_wad for market %d: %q", marketID, valueRaw)
		}
		total.ID = types.MarketID(marketID)
		total.ValueWAD = value
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("market total row iteration failed: %w", err)
	}
	return totals, nil
}

// LoadFeeState rehydrates the singleton fee record. Returns (nil, nil) when
// no record has been persisted yet.
func LoadFeeState() (*types.FeeState, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	row := DB.QueryRow(`
		SELECT last_accrual, high_water_mark_wad,
		       management_shares_minted, performance_shares_minted
		FROM fee_state WHERE singleton_id = 1;
	`)

	var feeState types.FeeState
	var hwmRaw, mgmtRaw, perfRaw string
	err := row.Scan(&feeState.LastAccrual, &hwmRaw, &mgmtRaw, &perfRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee state: %w", err)
	}

	var ok bool
	if feeState.HighWaterMarkWAD, ok = sdkmath.NewIntFromString(hwmRaw); !ok {
		return nil, fmt.Errorf("corrupt high_water_mark_wad: %q", hwmRaw)
	}
	if feeState.ManagementSharesMinted, ok = sdkmath.NewIntFromString(mgmtRaw); !ok {
		return nil, fmt.Errorf("corrupt management_shares_minted: %q", mgmtRaw)
	}
	if feeState.PerformanceSharesMinted, ok = sdkmath.NewIntFromString(perfRaw); !ok {
		return nil, fmt.Errorf("corrupt performance_shares_minted: %q", perfRaw)
	}
	return &feeState, nil
}

// GetRecentExecutions returns the most recent execution batches.
func GetRecentExecutions(limit int) ([]types.ExecutionResult, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := DB.Query(`
		SELECT execution_id, caller, receipts, markets_touched,
		       total_assets_wad, started_at, finished_at
		FROM execution_receipts
		ORDER BY finished_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var results []types.ExecutionResult
	for rows.Next() {
		var result types.ExecutionResult
		var idRaw, callerRaw, totalRaw string
		var receiptsJSON []byte
		var touched pq.Int64Array
		if err := rows.Scan(&idRaw, &callerRaw, &receiptsJSON, &touched, &totalRaw, &result.StartedAt, &result.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		if result.ExecutionID, err = uuid.Parse(idRaw); err != nil {
			return nil, fmt.Errorf("corrupt execution_id %q: %w", idRaw, err)
		}
		if err := json.Unmarshal(receiptsJSON, &result.Receipts); err != nil {
			return nil, fmt.Errorf("corrupt receipts for execution %s: %w", idRaw, err)
		}
		var ok bool
		if result.TotalAssetsWAD, ok = sdkmath.NewIntFromString(totalRaw); !ok {
			return nil, fmt.Errorf("corrupt total_assets_wad: %q", totalRaw)
		}
		result.Caller = common.HexToAddress(callerRaw)
		for _, id := range touched {
			result.MarketsTouched = append(result.MarketsTouched, types.MarketID(id))
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execution row iteration failed: %w", err)
	}
	return results, nil
}

/*

Fee accrual state. Management fees are time-weighted against NAV; performance
fees are charged on share-price growth above a high-water mark. Both settle
by minting shares to the configured fee accounts before any share pricing
uses a fresh NAV.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// FeeConfig holds the governance-set fee schedule. Rates are basis points
// (1/10,000); the management rate is annualized.
type FeeConfig struct {
	ManagementFeeBps   uint64         `json:"management_fee_bps"`
	PerformanceFeeBps  uint64         `json:"performance_fee_bps"`
	ManagementAccount  common.Address `json:"management_account"`
	PerformanceAccount common.Address `json:"performance_account"`
}

// FeeState is the timestamped accrual record.
type FeeState struct {
	LastAccrual time.Time `json:"last_accrual"`
	// HighWaterMarkWAD is the best observed share price, WAD-denominated.
	HighWaterMarkWAD sdkmath.Int `json:"high_water_mark_wad"`
	// Lifetime totals, share-denominated, for the reader surface.
	ManagementSharesMinted  sdkmath.Int `json:"management_shares_minted"`
	PerformanceSharesMinted sdkmath.Int `json:"performance_shares_minted"`
}

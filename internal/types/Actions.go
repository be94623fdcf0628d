/*

Action types for the routing engine. A FuseAction is one step of an operator
batch: which registered fuse to dispatch to and the enter/exit/claim payload.
Receipts record what actually happened for persistence and the reader API.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ActionType defines the specific low-level fuse operations.
type ActionType string

const (
	ActionEnter ActionType = "ENTER"
	ActionExit  ActionType = "EXIT"
	ActionClaim ActionType = "CLAIM"
)

// EnterData is the payload for a fuse enter: supply Amount of Asset into the
// fuse's bound market.
type EnterData struct {
	Asset  common.Address `json:"asset"`
	Amount sdkmath.Int    `json:"amount"`
	// MinAmountOut guards protocols that convert on entry (zero disables).
	MinAmountOut sdkmath.Int `json:"min_amount_out,omitempty"`
}

// ExitData is the payload for a fuse exit: withdraw Amount of Asset from the
// fuse's bound market. Amount is always underlying-asset units; an amount
// exceeding the position clamps to the full position.
type ExitData struct {
	Asset  common.Address `json:"asset"`
	Amount sdkmath.Int    `json:"amount"`
}

// FuseAction is a single executable step in an operator batch.
type FuseAction struct {
	Type ActionType     `json:"type"`
	Fuse common.Address `json:"fuse"`

	Enter *EnterData `json:"enter,omitempty"`
	Exit  *ExitData  `json:"exit,omitempty"`
}

// ActionReceipt records the outcome of one executed FuseAction.
type ActionReceipt struct {
	Action    string         `json:"action"`
	Fuse      common.Address `json:"fuse"`
	FuseName  string         `json:"fuse_name"`
	Version   string         `json:"version"`
	MarketID  MarketID       `json:"market_id"`
	Asset     common.Address `json:"asset"`
	Amount    sdkmath.Int    `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionResult is the persisted record of one Execute batch.
type ExecutionResult struct {
	ExecutionID    uuid.UUID       `json:"execution_id"`
	Caller         common.Address  `json:"caller"`
	Receipts       []ActionReceipt `json:"receipts"`
	MarketsTouched []MarketID      `json:"markets_touched"`
	TotalAssetsWAD sdkmath.Int     `json:"total_assets_wad"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// WithdrawRoute is one step of the configured instant-withdrawal path:
// which fuse to exit through and for which asset.
type WithdrawRoute struct {
	Fuse  common.Address `json:"fuse"`
	Asset common.Address `json:"asset"`
}

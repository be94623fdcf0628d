/*

Execution is the mutable handle the routing engine hands to fuses for one
batch. It is the in-process analog of a delegated call: every balance
mutation a fuse performs is attributed to the vault, and the only
authorization surface a fuse sees is the read-only grant check. Fuses get no
storage of their own.

*/

package vault

import (
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/types"
)

// GrantChecker is the read-only authorization view fuses validate against
// before any external interaction.
type GrantChecker interface {
	IsGranted(marketID types.MarketID, substrate types.Substrate) bool
}

// Execution scopes ledger access for one batch of fuse actions.
type Execution struct {
	ledger         *Ledger
	grants         GrantChecker
	rewardsManager common.Address
	touched        map[types.MarketID]struct{}
}

// NewExecution creates an execution handle over the ledger.
func NewExecution(ledger *Ledger, grants GrantChecker, rewardsManager common.Address) *Execution {
	return &Execution{
		ledger:         ledger,
		grants:         grants,
		rewardsManager: rewardsManager,
		touched:        make(map[types.MarketID]struct{}),
	}
}

// Account is the vault identity external protocols see.
func (e *Execution) Account() common.Address { return e.ledger.Address() }

// IsGranted checks substrate authorization for marketID.
func (e *Execution) IsGranted(marketID types.MarketID, substrate types.Substrate) bool {
	return e.grants.IsGranted(marketID, substrate)
}

// BalanceOf reads the vault's idle balance in asset.
func (e *Execution) BalanceOf(asset common.Address) sdkmath.Int {
	return e.ledger.BalanceOf(asset)
}

// Credit adds tokens received from an external protocol to the vault.
func (e *Execution) Credit(asset common.Address, amount sdkmath.Int) error {
	return e.ledger.Credit(asset, amount)
}

// Debit removes tokens the vault sends to an external protocol.
func (e *Execution) Debit(asset common.Address, amount sdkmath.Int) error {
	return e.ledger.Debit(asset, amount)
}

// TransferOut sends tokens out of the vault to recipient.
func (e *Execution) TransferOut(asset common.Address, amount sdkmath.Int, recipient common.Address) error {
	return e.ledger.TransferOut(asset, amount, recipient)
}

// RewardsClaimManager is the configured recipient of claimed rewards. Zero
// when unset; claim fuses must refuse to run in that case.
func (e *Execution) RewardsClaimManager() common.Address { return e.rewardsManager }

// Touch records that marketID was acted on, so reconciliation refreshes it.
func (e *Execution) Touch(marketID types.MarketID) {
	e.touched[marketID] = struct{}{}
}

// Touched enumerates acted-on markets in ascending order.
func (e *Execution) Touched() []types.MarketID {
	out := make([]types.MarketID, 0, len(e.touched))
	for id := range e.touched {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

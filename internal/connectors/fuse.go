/*

Fuse contracts: stateless, market-scoped adapters between the vault and
external protocols. A fuse is bound to exactly one market at construction
and may only act on substrates granted to that market; the grant check runs
before any state change or protocol call. Fuses mutate vault state only
through the Execution handle.

*/

package connectors

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fusion-network/pvm/internal/protocols"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/vault"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnsupportedAsset     = errors.New("asset is not granted to the fuse's market")
	ErrInvalidAmount        = errors.New("amount is invalid")
	ErrSlippageExceeded     = errors.New("received amount below minimum")
	ErrRewardsManagerNotSet = errors.New("rewards claim manager address is not configured")
)

// Fuse is the common identity surface of every registered connector.
type Fuse interface {
	// Address is the fuse's registry identity, derived from name+version.
	Address() common.Address
	// Name identifies the protocol variant (e.g. "aave_v3_supply").
	Name() string
	// Version is the fuse's version marker.
	Version() string
	// MarketID is the immutable market binding set at construction.
	MarketID() types.MarketID
}

// EnterExitFuse is a connector that moves capital in and out of its market.
type EnterExitFuse interface {
	Fuse
	Enter(ctx context.Context, ex *vault.Execution, data types.EnterData) (types.ActionReceipt, error)
	Exit(ctx context.Context, ex *vault.Execution, data types.ExitData) (types.ActionReceipt, error)
}

// ClaimFuse is a connector that claims protocol rewards and forwards them to
// the configured rewards-claim manager.
type ClaimFuse interface {
	Fuse
	Claim(ctx context.Context, ex *vault.Execution) (types.ActionReceipt, error)
}

// VenueBacked is implemented by fuses bound to an external venue. The engine
// snapshots every backing venue before a batch so a rollback rewinds
// collaborator state together with the ledger.
type VenueBacked interface {
	Venue() protocols.Snapshotter
}

// DeriveFuseAddress derives a stable registry identity for a fuse from its
// name and version.
func DeriveFuseAddress(name, version string) common.Address {
	digest := crypto.Keccak256([]byte(name + ":" + version))
	return common.BytesToAddress(digest[12:])
}

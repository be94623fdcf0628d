/*

Storage namespace registry. Each independent subsystem persists under its
own namespace so no two subsystems can ever alias the same storage location
across schema upgrades. Namespace identifiers are derived the same way the
on-chain convention derives collision-free slots: keccak256 of the
human-readable namespace string, minus one, with the low byte masked off.

*/

package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Schema namespaces, one per independent subsystem.
const (
	NamespaceMarketConfig = "io.fusion.pvm.market.config.v1"
	NamespaceBalanceFuses = "io.fusion.pvm.balance.fuses.v1"
	NamespaceMarketTotals = "io.fusion.pvm.market.totals.v1"
	NamespaceFeeState     = "io.fusion.pvm.fee.state.v1"
	NamespaceExecutions   = "io.fusion.pvm.executions.v1"
)

var allNamespaces = map[string]int{
	NamespaceMarketConfig: 1,
	NamespaceBalanceFuses: 1,
	NamespaceMarketTotals: 1,
	NamespaceFeeState:     1,
	NamespaceExecutions:   1,
}

// NamespaceID derives the collision-free identifier for a namespace string:
// keccak256(namespace) - 1, low byte masked to zero.
func NamespaceID(namespace string) common.Hash {
	digest := new(big.Int).SetBytes(crypto.Keccak256([]byte(namespace)))
	digest.Sub(digest, big.NewInt(1))
	mask := new(big.Int).Not(big.NewInt(0xff))
	digest.And(digest, mask)
	return common.BigToHash(digest)
}

// registerNamespaces upserts every namespace with its derived identifier and
// current schema version.
func registerNamespaces() error {
	query := `
		INSERT INTO schema_namespaces (namespace, namespace_id, version)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace) DO UPDATE SET version = EXCLUDED.version;
	`
	for namespace, version := range allNamespaces {
		id := NamespaceID(namespace)
		if _, err := DB.Exec(query, namespace, id.Hex(), version); err != nil {
			return fmt.Errorf("failed to register namespace %s: %w", namespace, err)
		}
	}
	return nil
}

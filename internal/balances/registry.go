/*

Balance-fuse registry: resolves the balance-fuse address designated in the
Market Configuration Store to a live BalanceFuse instance. FuseManager-gated
like the action-fuse whitelist.

*/

package balances

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/logger"
)

var balanceRegistryLogger = logger.GetForComponent("balance_fuse_registry")

// Registry maps balance-fuse addresses to instances.
type Registry struct {
	mu    sync.RWMutex
	fuses map[common.Address]BalanceFuse
	roles *accesscontrol.Registry
}

// NewRegistry creates an empty balance-fuse registry gated by roles.
func NewRegistry(roles *accesscontrol.Registry) (*Registry, error) {
	if roles == nil {
		return nil, errors.New("role registry cannot be nil")
	}
	return &Registry{
		fuses: make(map[common.Address]BalanceFuse),
		roles: roles,
	}, nil
}

// Register adds fuse to the registry. Caller must hold the FuseManager role.
func (r *Registry) Register(caller common.Address, fuse BalanceFuse) error {
	if err := r.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}
	if fuse == nil {
		return errors.New("balance fuse cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fuses[fuse.Address()] = fuse

	balanceRegistryLogger.Info().
		Str("fuse", fuse.Address().Hex()).
		Str("name", fuse.Name()).
		Uint64("market_id", uint64(fuse.MarketID())).
		Msg("Balance fuse registered")
	return nil
}

// Get resolves a balance fuse by address.
func (r *Registry) Get(fuse common.Address) (BalanceFuse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fuses[fuse]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFuseNotRegistered, fuse.Hex())
	}
	return f, nil
}

// List enumerates registered balance fuses in stable address order.
func (r *Registry) List() []BalanceFuse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BalanceFuse, 0, len(r.fuses))
	for _, f := range r.fuses {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Hex() < out[j].Address().Hex()
	})
	return out
}

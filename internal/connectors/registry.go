/*

Fuse whitelist. The routing engine only dispatches to fuses registered here;
registration and removal are FuseManager-gated. The registry is an explicit
owned table, enumerated by the reader API.

*/

package connectors

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrFuseNotRegistered     = errors.New("fuse is not registered")
	ErrFuseAlreadyRegistered = errors.New("fuse is already registered")
)

var registryLogger = logger.GetForComponent("fuse_registry")

// Registry is the governance-gated fuse whitelist.
type Registry struct {
	mu    sync.RWMutex
	fuses map[common.Address]Fuse
	roles *accesscontrol.Registry
}

// NewRegistry creates an empty whitelist gated by roles.
func NewRegistry(roles *accesscontrol.Registry) (*Registry, error) {
	if roles == nil {
		return nil, errors.New("role registry cannot be nil")
	}
	return &Registry{
		fuses: make(map[common.Address]Fuse),
		roles: roles,
	}, nil
}

// Register whitelists fuse. Caller must hold the FuseManager role.
func (r *Registry) Register(caller common.Address, fuse Fuse) error {
	if err := r.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}
	if fuse == nil {
		return errors.New("fuse cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fuses[fuse.Address()]; exists {
		return fmt.Errorf("%w: %s (%s)", ErrFuseAlreadyRegistered, fuse.Address().Hex(), fuse.Name())
	}
	r.fuses[fuse.Address()] = fuse

	registryLogger.Info().
		Str("fuse", fuse.Address().Hex()).
		Str("name", fuse.Name()).
		Str("version", fuse.Version()).
		Uint64("market_id", uint64(fuse.MarketID())).
		Msg("Fuse registered")
	return nil
}

// Remove drops fuse from the whitelist. Caller must hold the FuseManager role.
func (r *Registry) Remove(caller common.Address, fuse common.Address) error {
	if err := r.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fuses[fuse]; !exists {
		return fmt.Errorf("%w: %s", ErrFuseNotRegistered, fuse.Hex())
	}
	delete(r.fuses, fuse)

	registryLogger.Info().Str("fuse", fuse.Hex()).Msg("Fuse removed")
	return nil
}

// Get resolves a registered fuse by address.
func (r *Registry) Get(fuse common.Address) (Fuse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fuses[fuse]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFuseNotRegistered, fuse.Hex())
	}
	return f, nil
}

// IsRegistered reports whether fuse is whitelisted.
func (r *Registry) IsRegistered(fuse common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fuses[fuse]
	return ok
}

// List enumerates registered fuses in stable address order.
func (r *Registry) List() []Fuse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fuse, 0, len(r.fuses))
	for _, f := range r.fuses {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Hex() < out[j].Address().Hex()
	})
	return out
}

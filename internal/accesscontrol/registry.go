/*

Role registry for the vault. Governance ("Atomist") manages market grants,
fuse registries and fee accounts; "FuseManager" is a narrower registry role;
"Alpha" is the only role allowed to submit execution batches; "Guardian" can
pause the vault. Role checks always happen before any state mutation or
protocol interaction.

*/

package accesscontrol

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/logger"
)

// Role names the capability sets recognized by the vault.
type Role string

const (
	RoleAtomist     Role = "ATOMIST"
	RoleFuseManager Role = "FUSE_MANAGER"
	RoleAlpha       Role = "ALPHA"
	RoleGuardian    Role = "GUARDIAN"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnauthorized   = errors.New("account does not hold required role")
	ErrZeroAddress    = errors.New("zero address is not supported")
	ErrUnknownRole    = errors.New("role is not recognized")
	ErrVaultPaused    = errors.New("vault is paused")
	ErrVaultNotPaused = errors.New("vault is not paused")
)

var validRoles = map[Role]struct{}{
	RoleAtomist:     {},
	RoleFuseManager: {},
	RoleAlpha:       {},
	RoleGuardian:    {},
}

// Registry is the owned table of role assignments plus the pause flag.
// All mutations are governance-gated through the granting account.
type Registry struct {
	mu     sync.RWMutex
	grants map[Role]map[common.Address]struct{}
	paused bool
}

// NewRegistry creates a registry with the bootstrap Atomist. The Atomist can
// then grant further roles, including additional Atomists.
func NewRegistry(atomist common.Address) (*Registry, error) {
	if atomist == (common.Address{}) {
		return nil, fmt.Errorf("%w: atomist", ErrZeroAddress)
	}
	r := &Registry{
		grants: make(map[Role]map[common.Address]struct{}),
	}
	r.grants[RoleAtomist] = map[common.Address]struct{}{atomist: {}}
	return r, nil
}

var acLogger = logger.GetForComponent("access_control")

// Grant assigns role to account. Only an Atomist may grant.
func (r *Registry) Grant(caller common.Address, role Role, account common.Address) error {
	if err := r.Require(caller, RoleAtomist); err != nil {
		return err
	}
	if _, ok := validRoles[role]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if account == (common.Address{}) {
		return fmt.Errorf("%w: account for role %s", ErrZeroAddress, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[role] == nil {
		r.grants[role] = make(map[common.Address]struct{})
	}
	r.grants[role][account] = struct{}{}

	acLogger.Info().
		Str("role", string(role)).
		Str("account", account.Hex()).
		Str("granted_by", caller.Hex()).
		Msg("Role granted")
	return nil
}

// Revoke removes role from account. Only an Atomist may revoke. Revoking the
// last Atomist is rejected so governance can never lock itself out.
func (r *Registry) Revoke(caller common.Address, role Role, account common.Address) error {
	if err := r.Require(caller, RoleAtomist); err != nil {
		return err
	}
	if _, ok := validRoles[role]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if role == RoleAtomist && len(r.grants[RoleAtomist]) == 1 {
		if _, last := r.grants[RoleAtomist][account]; last {
			return errors.New("cannot revoke the last atomist")
		}
	}
	delete(r.grants[role], account)

	acLogger.Info().
		Str("role", string(role)).
		Str("account", account.Hex()).
		Str("revoked_by", caller.Hex()).
		Msg("Role revoked")
	return nil
}

// HasRole reports whether account holds role. Atomists implicitly hold the
// FuseManager role.
func (r *Registry) HasRole(account common.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.grants[role][account]; ok {
		return true
	}
	if role == RoleFuseManager {
		_, ok := r.grants[RoleAtomist][account]
		return ok
	}
	return false
}

// Require fails with ErrUnauthorized naming the account and role when the
// account does not hold it.
func (r *Registry) Require(account common.Address, role Role) error {
	if !r.HasRole(account, role) {
		return fmt.Errorf("%w: account %s, role %s", ErrUnauthorized, account.Hex(), role)
	}
	return nil
}

// Members enumerates the accounts holding role, in stable order.
func (r *Registry) Members(role Role) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.grants[role]))
	for acct := range r.grants[role] {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}

// Pause halts Execute and all ERC-4626 entry points. Guardian or Atomist only.
func (r *Registry) Pause(caller common.Address) error {
	if !r.HasRole(caller, RoleGuardian) && !r.HasRole(caller, RoleAtomist) {
		return fmt.Errorf("%w: account %s, role %s", ErrUnauthorized, caller.Hex(), RoleGuardian)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return ErrVaultPaused
	}
	r.paused = true
	acLogger.Warn().Str("caller", caller.Hex()).Msg("Vault paused")
	return nil
}

// Unpause lifts the pause flag. Atomist only.
func (r *Registry) Unpause(caller common.Address) error {
	if err := r.Require(caller, RoleAtomist); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return ErrVaultNotPaused
	}
	r.paused = false
	acLogger.Info().Str("caller", caller.Hex()).Msg("Vault unpaused")
	return nil
}

// Paused reports the pause flag.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

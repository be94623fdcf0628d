/*

Market Configuration Store: the governance-gated registry mapping a market
identifier to its granted substrates and its balance fuse. Fuses consult the
grant set before every protocol interaction; the routing engine consults the
balance-fuse registry during reconciliation.

The store keeps a membership map for O(1) grant checks and an iterable slice
for enumeration, held consistent on every mutation (swap-and-pop removal).

*/

package marketcfg

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnsupportedMarket = errors.New("market has no configuration")
	ErrEmptySubstrates   = errors.New("substrates array is empty")
	ErrZeroAddress       = errors.New("zero address is not supported")
	ErrSubstrateRevoked  = errors.New("substrate is not granted")
)

var storeLogger = logger.GetForComponent("market_config")

// Persister receives write-through notifications on every mutation. A nil
// persister disables persistence (tests, dry runs).
type Persister interface {
	SaveSubstrates(marketID types.MarketID, substrates []types.Substrate) error
	SaveBalanceFuse(marketID types.MarketID, fuse common.Address) error
}

type marketEntry struct {
	granted     map[types.Substrate]struct{}
	ordered     []types.Substrate
	balanceFuse common.Address
}

// Store is the authoritative in-memory market configuration, optionally
// write-through persisted.
type Store struct {
	mu        sync.RWMutex
	markets   map[types.MarketID]*marketEntry
	roles     *accesscontrol.Registry
	persister Persister
}

// NewStore creates an empty store. roles gates every mutation; persister may
// be nil.
func NewStore(roles *accesscontrol.Registry, persister Persister) (*Store, error) {
	if roles == nil {
		return nil, errors.New("role registry cannot be nil")
	}
	return &Store{
		markets:   make(map[types.MarketID]*marketEntry),
		roles:     roles,
		persister: persister,
	}, nil
}

// GrantSubstrates grants every substrate in substrates to marketID, creating
// the market entry on first grant. Caller must hold the FuseManager role.
// An empty array is an error, not a silent no-op.
func (s *Store) GrantSubstrates(caller common.Address, marketID types.MarketID, substrates []types.Substrate) error {
	if err := s.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}
	if len(substrates) == 0 {
		return fmt.Errorf("%w: grant for market %d", ErrEmptySubstrates, marketID)
	}
	for _, sub := range substrates {
		if sub.IsZero() {
			return fmt.Errorf("%w: substrate for market %d", ErrZeroAddress, marketID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.markets[marketID]
	if entry == nil {
		entry = &marketEntry{granted: make(map[types.Substrate]struct{})}
		s.markets[marketID] = entry
	}
	for _, sub := range substrates {
		if _, exists := entry.granted[sub]; exists {
			continue
		}
		entry.granted[sub] = struct{}{}
		entry.ordered = append(entry.ordered, sub)
	}

	if err := s.persistSubstratesLocked(marketID, entry); err != nil {
		return err
	}

	storeLogger.Info().
		Uint64("market_id", uint64(marketID)).
		Int("granted", len(substrates)).
		Int("total", len(entry.ordered)).
		Msg("Substrates granted")
	return nil
}

// RevokeSubstrates revokes every substrate in substrates from marketID.
// Caller must hold the FuseManager role. Revoking a substrate that was never
// granted is a no-op for that element; an empty array is an error.
func (s *Store) RevokeSubstrates(caller common.Address, marketID types.MarketID, substrates []types.Substrate) error {
	if err := s.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}
	if len(substrates) == 0 {
		return fmt.Errorf("%w: revoke for market %d", ErrEmptySubstrates, marketID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.markets[marketID]
	if entry == nil {
		return fmt.Errorf("%w: market %d", ErrUnsupportedMarket, marketID)
	}
	for _, sub := range substrates {
		if _, exists := entry.granted[sub]; !exists {
			continue
		}
		delete(entry.granted, sub)
		// Swap-and-pop keeps the slice consistent with the map. Grant lists
		// are small, so the O(n) scan is acceptable.
		for i, ordered := range entry.ordered {
			if ordered == sub {
				last := len(entry.ordered) - 1
				entry.ordered[i] = entry.ordered[last]
				entry.ordered = entry.ordered[:last]
				break
			}
		}
	}

	if err := s.persistSubstratesLocked(marketID, entry); err != nil {
		return err
	}

	storeLogger.Info().
		Uint64("market_id", uint64(marketID)).
		Int("revoked", len(substrates)).
		Int("remaining", len(entry.ordered)).
		Msg("Substrates revoked")
	return nil
}

func (s *Store) persistSubstratesLocked(marketID types.MarketID, entry *marketEntry) error {
	if s.persister == nil {
		return nil
	}
	snapshot := make([]types.Substrate, len(entry.ordered))
	copy(snapshot, entry.ordered)
	if err := s.persister.SaveSubstrates(marketID, snapshot); err != nil {
		return fmt.Errorf("failed to persist substrates for market %d: %w", marketID, err)
	}
	return nil
}

// IsGranted reports whether substrate is currently granted to marketID.
func (s *Store) IsGranted(marketID types.MarketID, substrate types.Substrate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.markets[marketID]
	if entry == nil {
		return false
	}
	_, ok := entry.granted[substrate]
	return ok
}

// GetSubstrates enumerates the granted substrates of marketID. Unknown
// markets fail with ErrUnsupportedMarket.
func (s *Store) GetSubstrates(marketID types.MarketID) ([]types.Substrate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.markets[marketID]
	if entry == nil {
		return nil, fmt.Errorf("%w: market %d", ErrUnsupportedMarket, marketID)
	}
	out := make([]types.Substrate, len(entry.ordered))
	copy(out, entry.ordered)
	return out, nil
}

// SetBalanceFuse designates the balance fuse for marketID. Caller must hold
// the FuseManager role; the zero address is rejected.
func (s *Store) SetBalanceFuse(caller common.Address, marketID types.MarketID, fuse common.Address) error {
	if err := s.roles.Require(caller, accesscontrol.RoleFuseManager); err != nil {
		return err
	}
	if fuse == (common.Address{}) {
		return fmt.Errorf("%w: balance fuse for market %d", ErrZeroAddress, marketID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.markets[marketID]
	if entry == nil {
		entry = &marketEntry{granted: make(map[types.Substrate]struct{})}
		s.markets[marketID] = entry
	}
	entry.balanceFuse = fuse

	if s.persister != nil {
		if err := s.persister.SaveBalanceFuse(marketID, fuse); err != nil {
			return fmt.Errorf("failed to persist balance fuse for market %d: %w", marketID, err)
		}
	}

	storeLogger.Info().
		Uint64("market_id", uint64(marketID)).
		Str("balance_fuse", fuse.Hex()).
		Msg("Balance fuse set")
	return nil
}

// BalanceFuse returns the designated balance fuse of marketID, or the zero
// address when none is set.
func (s *Store) BalanceFuse(marketID types.MarketID) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.markets[marketID]
	if entry == nil {
		return common.Address{}
	}
	return entry.balanceFuse
}

// Markets enumerates configured market IDs in ascending order.
func (s *Store) Markets() []types.MarketID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.MarketID, 0, len(s.markets))
	for id := range s.markets {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Config returns the full read-only view of marketID.
func (s *Store) Config(marketID types.MarketID) (types.MarketConfig, error) {
	subs, err := s.GetSubstrates(marketID)
	if err != nil {
		return types.MarketConfig{}, err
	}
	return types.MarketConfig{
		ID:          marketID,
		Substrates:  subs,
		BalanceFuse: s.BalanceFuse(marketID),
	}, nil
}

// Restore rehydrates one market entry from persisted state. Used only during
// startup, before the store is shared; bypasses role checks and persistence.
func (s *Store) Restore(marketID types.MarketID, substrates []types.Substrate, balanceFuse common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &marketEntry{granted: make(map[types.Substrate]struct{}), balanceFuse: balanceFuse}
	for _, sub := range substrates {
		if _, exists := entry.granted[sub]; exists {
			continue
		}
		entry.granted[sub] = struct{}{}
		entry.ordered = append(entry.ordered, sub)
	}
	s.markets[marketID] = entry
}

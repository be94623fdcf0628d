package marketcfg

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/types"
)

var (
	atomist  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	manager  = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000D1")

	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

const marketID types.MarketID = 1

func newTestStore(t *testing.T, persister Persister) *Store {
	t.Helper()
	roles, err := accesscontrol.NewRegistry(atomist)
	require.NoError(t, err)
	require.NoError(t, roles.Grant(atomist, accesscontrol.RoleFuseManager, manager))
	store, err := NewStore(roles, persister)
	require.NoError(t, err)
	return store
}

func TestGrantSubstrates(t *testing.T) {
	store := newTestStore(t, nil)

	subs := []types.Substrate{
		types.SubstrateFromAsset(usdc),
		types.SubstrateFromAsset(weth),
	}
	require.NoError(t, store.GrantSubstrates(manager, marketID, subs))

	assert.True(t, store.IsGranted(marketID, subs[0]))
	assert.True(t, store.IsGranted(marketID, subs[1]))
	assert.False(t, store.IsGranted(marketID, types.SubstrateFromAsset(dai)))

	got, err := store.GetSubstrates(marketID)
	require.NoError(t, err)
	assert.Equal(t, subs, got)
}

func TestGrantSubstratesIdempotent(t *testing.T) {
	store := newTestStore(t, nil)
	sub := types.SubstrateFromAsset(usdc)

	require.NoError(t, store.GrantSubstrates(manager, marketID, []types.Substrate{sub}))
	require.NoError(t, store.GrantSubstrates(manager, marketID, []types.Substrate{sub}))

	got, err := store.GetSubstrates(marketID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGrantSubstratesValidation(t *testing.T) {
	store := newTestStore(t, nil)

	err := store.GrantSubstrates(stranger, marketID, []types.Substrate{types.SubstrateFromAsset(usdc)})
	assert.ErrorIs(t, err, accesscontrol.ErrUnauthorized)

	err = store.GrantSubstrates(manager, marketID, nil)
	assert.ErrorIs(t, err, ErrEmptySubstrates)

	err = store.GrantSubstrates(manager, marketID, []types.Substrate{{}})
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestAtomistCanGrantDirectly(t *testing.T) {
	store := newTestStore(t, nil)

	err := store.GrantSubstrates(atomist, marketID, []types.Substrate{types.SubstrateFromAsset(usdc)})
	assert.NoError(t, err)
}

func TestRevokeSubstrates(t *testing.T) {
	store := newTestStore(t, nil)

	subs := []types.Substrate{
		types.SubstrateFromAsset(usdc),
		types.SubstrateFromAsset(weth),
		types.SubstrateFromAsset(dai),
	}
	require.NoError(t, store.GrantSubstrates(manager, marketID, subs))
	require.NoError(t, store.RevokeSubstrates(manager, marketID, []types.Substrate{subs[1]}))

	assert.False(t, store.IsGranted(marketID, subs[1]))
	assert.True(t, store.IsGranted(marketID, subs[0]))
	assert.True(t, store.IsGranted(marketID, subs[2]))

	got, err := store.GetSubstrates(marketID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.ElementsMatch(t, []types.Substrate{subs[0], subs[2]}, got)
}

func TestRevokeNeverGrantedIsNoOp(t *testing.T) {
	store := newTestStore(t, nil)

	require.NoError(t, store.GrantSubstrates(manager, marketID, []types.Substrate{types.SubstrateFromAsset(usdc)}))
	require.NoError(t, store.RevokeSubstrates(manager, marketID, []types.Substrate{types.SubstrateFromAsset(dai)}))

	got, err := store.GetSubstrates(marketID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRevokeUnknownMarket(t *testing.T) {
	store := newTestStore(t, nil)

	err := store.RevokeSubstrates(manager, 99, []types.Substrate{types.SubstrateFromAsset(usdc)})
	assert.ErrorIs(t, err, ErrUnsupportedMarket)
}

func TestGetSubstratesUnknownMarket(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.GetSubstrates(42)
	assert.ErrorIs(t, err, ErrUnsupportedMarket)
}

func TestSetBalanceFuse(t *testing.T) {
	store := newTestStore(t, nil)
	fuse := common.HexToAddress("0x00000000000000000000000000000000000000FE")

	require.NoError(t, store.SetBalanceFuse(manager, marketID, fuse))
	assert.Equal(t, fuse, store.BalanceFuse(marketID))

	// Unset markets report the zero address.
	assert.Equal(t, common.Address{}, store.BalanceFuse(99))

	err := store.SetBalanceFuse(manager, marketID, common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)

	err = store.SetBalanceFuse(stranger, marketID, fuse)
	assert.ErrorIs(t, err, accesscontrol.ErrUnauthorized)
}

func TestMarketsOrdered(t *testing.T) {
	store := newTestStore(t, nil)
	sub := []types.Substrate{types.SubstrateFromAsset(usdc)}

	for _, id := range []types.MarketID{7, 2, 5} {
		require.NoError(t, store.GrantSubstrates(manager, id, sub))
	}

	assert.Equal(t, []types.MarketID{2, 5, 7}, store.Markets())
}

func TestConfigView(t *testing.T) {
	store := newTestStore(t, nil)
	fuse := common.HexToAddress("0x00000000000000000000000000000000000000FE")
	subs := []types.Substrate{types.SubstrateFromAsset(usdc)}

	require.NoError(t, store.GrantSubstrates(manager, marketID, subs))
	require.NoError(t, store.SetBalanceFuse(manager, marketID, fuse))

	cfg, err := store.Config(marketID)
	require.NoError(t, err)
	assert.Equal(t, marketID, cfg.ID)
	assert.Equal(t, subs, cfg.Substrates)
	assert.Equal(t, fuse, cfg.BalanceFuse)
}

func TestRestoreBypassesGating(t *testing.T) {
	store := newTestStore(t, nil)
	fuse := common.HexToAddress("0x00000000000000000000000000000000000000FE")
	subs := []types.Substrate{
		types.SubstrateFromAsset(usdc),
		types.SubstrateFromAsset(weth),
	}

	store.Restore(marketID, subs, fuse)

	got, err := store.GetSubstrates(marketID)
	require.NoError(t, err)
	assert.Equal(t, subs, got)
	assert.Equal(t, fuse, store.BalanceFuse(marketID))
}

// recordingPersister captures write-through calls.
type recordingPersister struct {
	substrates map[types.MarketID][]types.Substrate
	fuses      map[types.MarketID]common.Address
	fail       bool
}

func newRecordingPersister() *recordingPersister {
	return &recordingPersister{
		substrates: make(map[types.MarketID][]types.Substrate),
		fuses:      make(map[types.MarketID]common.Address),
	}
}

func (p *recordingPersister) SaveSubstrates(marketID types.MarketID, substrates []types.Substrate) error {
	if p.fail {
		return errors.New("persistence unavailable")
	}
	p.substrates[marketID] = substrates
	return nil
}

func (p *recordingPersister) SaveBalanceFuse(marketID types.MarketID, fuse common.Address) error {
	if p.fail {
		return errors.New("persistence unavailable")
	}
	p.fuses[marketID] = fuse
	return nil
}

func TestWriteThroughPersistence(t *testing.T) {
	persister := newRecordingPersister()
	store := newTestStore(t, persister)
	fuse := common.HexToAddress("0x00000000000000000000000000000000000000FE")

	subs := []types.Substrate{
		types.SubstrateFromAsset(usdc),
		types.SubstrateFromAsset(weth),
	}
	require.NoError(t, store.GrantSubstrates(manager, marketID, subs))
	assert.Equal(t, subs, persister.substrates[marketID])

	require.NoError(t, store.RevokeSubstrates(manager, marketID, []types.Substrate{subs[0]}))
	assert.Len(t, persister.substrates[marketID], 1)

	require.NoError(t, store.SetBalanceFuse(manager, marketID, fuse))
	assert.Equal(t, fuse, persister.fuses[marketID])
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	persister := newRecordingPersister()
	persister.fail = true
	store := newTestStore(t, persister)

	err := store.GrantSubstrates(manager, marketID, []types.Substrate{types.SubstrateFromAsset(usdc)})
	assert.Error(t, err)
}

package accesscontrol

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	atomist  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	alpha    = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(atomist)
	require.NoError(t, err)
	return r
}

func TestNewRegistryRejectsZeroAtomist(t *testing.T) {
	_, err := NewRegistry(common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestGrantAndHasRole(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Grant(atomist, RoleAlpha, alpha))
	assert.True(t, r.HasRole(alpha, RoleAlpha))
	assert.False(t, r.HasRole(alpha, RoleAtomist))
	assert.False(t, r.HasRole(stranger, RoleAlpha))
}

func TestGrantRequiresAtomist(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Grant(stranger, RoleAlpha, alpha)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, r.HasRole(alpha, RoleAlpha))
}

func TestGrantValidation(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Grant(atomist, Role("JANITOR"), alpha)
	assert.ErrorIs(t, err, ErrUnknownRole)

	err = r.Grant(atomist, RoleAlpha, common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestAtomistImpliesFuseManager(t *testing.T) {
	r := newTestRegistry(t)

	assert.True(t, r.HasRole(atomist, RoleFuseManager))
	assert.False(t, r.HasRole(atomist, RoleAlpha))
}

func TestRevoke(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Grant(atomist, RoleAlpha, alpha))
	require.NoError(t, r.Revoke(atomist, RoleAlpha, alpha))
	assert.False(t, r.HasRole(alpha, RoleAlpha))
}

func TestRevokeLastAtomistRejected(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Revoke(atomist, RoleAtomist, atomist)
	require.Error(t, err)
	assert.True(t, r.HasRole(atomist, RoleAtomist))

	// With a second Atomist in place the original can step down.
	second := common.HexToAddress("0x00000000000000000000000000000000000000A2")
	require.NoError(t, r.Grant(atomist, RoleAtomist, second))
	require.NoError(t, r.Revoke(second, RoleAtomist, atomist))
	assert.False(t, r.HasRole(atomist, RoleAtomist))
}

func TestRequire(t *testing.T) {
	r := newTestRegistry(t)

	assert.NoError(t, r.Require(atomist, RoleAtomist))

	err := r.Require(stranger, RoleAlpha)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), stranger.Hex())
	assert.Contains(t, err.Error(), string(RoleAlpha))
}

func TestMembersStableOrder(t *testing.T) {
	r := newTestRegistry(t)

	a := common.HexToAddress("0x0000000000000000000000000000000000000003")
	b := common.HexToAddress("0x0000000000000000000000000000000000000001")
	c := common.HexToAddress("0x0000000000000000000000000000000000000002")
	for _, acct := range []common.Address{a, b, c} {
		require.NoError(t, r.Grant(atomist, RoleAlpha, acct))
	}

	members := r.Members(RoleAlpha)
	require.Len(t, members, 3)
	assert.Equal(t, []common.Address{b, c, a}, members)
}

func TestPauseUnpause(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Grant(atomist, RoleGuardian, guardian))

	// Guardian can pause but not unpause.
	require.NoError(t, r.Pause(guardian))
	assert.True(t, r.Paused())

	err := r.Unpause(guardian)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, r.Unpause(atomist))
	assert.False(t, r.Paused())
}

func TestPauseStateTransitions(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Pause(stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = r.Unpause(atomist)
	assert.ErrorIs(t, err, ErrVaultNotPaused)

	require.NoError(t, r.Pause(atomist))
	err = r.Pause(atomist)
	assert.ErrorIs(t, err, ErrVaultPaused)
}

package balances

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/simulations"
	"github.com/fusion-network/pvm/internal/utils"
)

func TestBalanceRegistry(t *testing.T) {
	atomist := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000D1")

	roles, err := accesscontrol.NewRegistry(atomist)
	require.NoError(t, err)
	registry, err := NewRegistry(roles)
	require.NoError(t, err)

	pool, err := simulations.NewPool("aave_v3", map[common.Address]int{usdc: 6})
	require.NoError(t, err)
	grants := &staticSubstrates{}
	prices := staticPrices{usdc: utils.Pow10(utils.PriceDecimals)}
	fuse, err := NewLendingBalanceFuse("aave_v3_balance", "2.0.0", marketID, pool, pool, prices, grants)
	require.NoError(t, err)

	err = registry.Register(stranger, fuse)
	assert.ErrorIs(t, err, accesscontrol.ErrUnauthorized)

	require.NoError(t, registry.Register(atomist, fuse))

	got, err := registry.Get(fuse.Address())
	require.NoError(t, err)
	assert.Equal(t, fuse.Name(), got.Name())

	_, err = registry.Get(common.HexToAddress("0x00000000000000000000000000000000000000FF"))
	assert.ErrorIs(t, err, ErrFuseNotRegistered)

	listed := registry.List()
	require.Len(t, listed, 1)
	assert.Equal(t, fuse.Address(), listed[0].Address())
}

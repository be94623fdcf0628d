package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackSubstrateRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name string
		kind SubstrateKind
	}{
		{name: "asset", kind: SubstrateKindAsset},
		{name: "sub_market", kind: SubstrateKindSubMarket},
		{name: "gauge", kind: SubstrateKindGauge},
		{name: "reward_vault", kind: SubstrateKindRewardVault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PackSubstrate(tt.kind, addr)
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, addr, s.Address())
			assert.False(t, s.IsZero())
		})
	}
}

func TestSubstrateFromAsset(t *testing.T) {
	addr := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	s := SubstrateFromAsset(addr)

	assert.Equal(t, SubstrateKindAsset, s.Kind())
	assert.Equal(t, addr, s.Address())

	// Reserved bytes stay zero.
	for i := 1; i < 12; i++ {
		assert.Zero(t, s[i])
	}
}

func TestSubstrateIsZero(t *testing.T) {
	var s Substrate
	assert.True(t, s.IsZero())

	s = PackSubstrate(SubstrateKindGauge, common.Address{})
	assert.True(t, s.IsZero())
}

func TestSubstrateStringParse(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	s := PackSubstrate(SubstrateKindRewardVault, addr)

	encoded := s.String()
	require.Len(t, encoded, 2+64)

	decoded, err := ParseSubstrate(encoded)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestParseSubstrateRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "missing prefix", raw: "0101010101010101010101010101010101010101010101010101010101010101"},
		{name: "too short", raw: "0x0101"},
		{name: "non hex", raw: "0xzz01010101010101010101010101010101010101010101010101010101010101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubstrate(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidSubstrate)
		})
	}
}

func TestSubstrateKindString(t *testing.T) {
	assert.Equal(t, "asset", SubstrateKindAsset.String())
	assert.Equal(t, "reward_vault", SubstrateKindRewardVault.String())
	assert.Equal(t, "unknown", SubstrateKind(0xFF).String())
}

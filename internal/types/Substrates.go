/*

Substrates are the things a market allows fuses to act upon: plain asset
addresses or protocol-specific sub-identifiers (gauges, reward vaults). They
are packed into a fixed 32-byte value so grant sets can use cheap map lookups.

*/

package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SubstrateKind tags what a packed substrate refers to.
type SubstrateKind byte

const (
	SubstrateKindUnknown     SubstrateKind = 0x00
	SubstrateKindAsset       SubstrateKind = 0x01
	SubstrateKindSubMarket   SubstrateKind = 0x02
	SubstrateKindGauge       SubstrateKind = 0x03
	SubstrateKindRewardVault SubstrateKind = 0x04
)

var ErrInvalidSubstrate = errors.New("substrate encoding is invalid")

// Substrate is a 32-byte packed market-scoped identifier.
// Layout: [0] kind tag, [1:12] reserved zero, [12:32] address bytes.
type Substrate [32]byte

// SubstrateFromAsset packs a plain asset address.
func SubstrateFromAsset(asset common.Address) Substrate {
	return PackSubstrate(SubstrateKindAsset, asset)
}

// PackSubstrate packs a kind tag and an address into a substrate value.
func PackSubstrate(kind SubstrateKind, addr common.Address) Substrate {
	var s Substrate
	s[0] = byte(kind)
	copy(s[12:], addr.Bytes())
	return s
}

// Kind returns the substrate's type tag.
func (s Substrate) Kind() SubstrateKind {
	return SubstrateKind(s[0])
}

// Address returns the address component of the substrate.
func (s Substrate) Address() common.Address {
	return common.BytesToAddress(s[12:])
}

// IsZero reports whether the address component is the zero address.
func (s Substrate) IsZero() bool {
	return s.Address() == (common.Address{})
}

// String renders the packed value as 0x-prefixed hex for logs and storage.
func (s Substrate) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSubstrate decodes the 0x-hex form produced by String.
func ParseSubstrate(raw string) (Substrate, error) {
	var s Substrate
	if len(raw) != 2+64 || raw[0] != '0' || (raw[1] != 'x' && raw[1] != 'X') {
		return s, fmt.Errorf("%w: %q", ErrInvalidSubstrate, raw)
	}
	b, err := hex.DecodeString(raw[2:])
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSubstrate, err)
	}
	copy(s[:], b)
	return s, nil
}

func (k SubstrateKind) String() string {
	switch k {
	case SubstrateKindAsset:
		return "asset"
	case SubstrateKindSubMarket:
		return "sub_market"
	case SubstrateKindGauge:
		return "gauge"
	case SubstrateKindRewardVault:
		return "reward_vault"
	default:
		return "unknown"
	}
}

/*
This file contains the decimal-scaling helpers shared by balance fuses and
the routing engine. All scaling is multiply-then-divide over arbitrary
precision integers so intermediate products never lose precision.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// WadDecimals is the common fixed-point precision for aggregated values.
const WadDecimals = 18

// PriceDecimals is the oracle middleware's base-currency precision.
const PriceDecimals = 8

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidDecimals = errors.New("decimals out of range")
	ErrAmountNil       = errors.New("amount is nil")
	ErrNegativeResult  = errors.New("result is negative")
	ErrNonPositive     = errors.New("value must be positive")
)

// Pow10 returns 10^n as an sdkmath.Int.
func Pow10(n int) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, n)
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > 36 {
		return fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidDecimals, decimals)
	}
	return nil
}

// ScaleDecimals rescales amount from fromDecimals to toDecimals. Scaling up
// is exact; scaling down truncates toward zero.
func ScaleDecimals(amount sdkmath.Int, fromDecimals, toDecimals int) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if err := checkDecimals(fromDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := checkDecimals(toDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}

	switch {
	case fromDecimals == toDecimals:
		return amount, nil
	case fromDecimals < toDecimals:
		return amount.Mul(Pow10(toDecimals - fromDecimals)), nil
	default:
		return amount.Quo(Pow10(fromDecimals - toDecimals)), nil
	}
}

// ValueToWad converts a position size into a WAD base-currency value:
// amount * price, scaled from (assetDecimals + priceDecimals) to 18.
// The amount may be negative (debt positions); the sign propagates.
func ValueToWad(amount sdkmath.Int, assetDecimals int, price sdkmath.Int, priceDecimals int) (sdkmath.Int, error) {
	if amount.IsNil() || price.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if err := checkDecimals(assetDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := checkDecimals(priceDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}

	raw := amount.Mul(price)
	return ScaleDecimals(raw, assetDecimals+priceDecimals, WadDecimals)
}

// WadToAssetAmount converts a WAD base-currency value back into asset units
// at the given price: value / price, scaled from 18 to assetDecimals. The
// value is first brought to full product precision so the single division
// happens last.
func WadToAssetAmount(valueWAD sdkmath.Int, assetDecimals int, price sdkmath.Int, priceDecimals int) (sdkmath.Int, error) {
	if valueWAD.IsNil() || price.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if err := checkDecimals(assetDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := checkDecimals(priceDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: price %s", ErrNonPositive, price)
	}

	scaled := valueWAD.Mul(Pow10(assetDecimals + priceDecimals))
	return scaled.Quo(price.Mul(Pow10(WadDecimals))), nil
}

// ToUnsigned casts a signed aggregate to a non-negative value, failing
// loudly instead of wrapping when the aggregate ended up negative.
func ToUnsigned(value sdkmath.Int) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if value.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNegativeResult, value)
	}
	return value, nil
}

// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixedpoint provides the integer arithmetic shared by the lending
// calculations: basis points, WAD (1e18) scaling, floor-rounded mul-div with a
// 256-bit intermediate, and conversion between on-chain micro units and
// human decimal amounts.
//
// Every function rounds toward zero. Rounding in the borrower's favor is a
// protocol property, so nothing here ever rounds up.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// BpsDenom is the basis points denominator (100% = 10000 basis points)
	BpsDenom uint64 = 10_000

	// Wad is the 1e18 fixed-point scale used by the borrow index
	Wad uint64 = 1_000_000_000_000_000_000

	// WadDecimals is the number of decimal places in a WAD value
	WadDecimals uint8 = 18
)

// MulDivFloor returns floor(a*b/denominator). The product is formed in 256
// bits so it cannot overflow; only a quotient wider than 64 bits fails.
func MulDivFloor(a, b, denominator uint64) (uint64, error) {
	z, err := MulDivFloorWide(
		uint256.NewInt(a),
		uint256.NewInt(b),
		uint256.NewInt(denominator),
	)
	if err != nil {
		return 0, err
	}
	return ToUint64(z)
}

// MulDivFloorWide returns floor(a*b/denominator) on 256-bit operands
func MulDivFloorWide(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, fmt.Errorf(
			"mul-div %s*%s/0: %w",
			a.Dec(),
			b.Dec(),
			common.ErrDivisionByZero,
		)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, fmt.Errorf(
			"mul-div %s*%s/%s: %w",
			a.Dec(),
			b.Dec(),
			denominator.Dec(),
			common.ErrOverflow,
		)
	}
	return z, nil
}

// ToUint64 narrows a 256-bit value, failing rather than truncating
func ToUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds uint64: %w", v.Dec(), common.ErrOverflow)
	}
	return v.Uint64(), nil
}

// BpsOf returns floor(amount * bps / 10000)
func BpsOf(amount, bps uint64) (uint64, error) {
	return MulDivFloor(amount, bps, BpsDenom)
}

// MaxDecimals is the largest asset precision whose whole unit fits in a
// uint64 amount
const MaxDecimals uint8 = 19

// maxPow10Exp is the largest power of ten representable in 256 bits
const maxPow10Exp uint8 = 77

// Pow10 returns 10^exp as a 256-bit integer
func Pow10(exp uint8) (*uint256.Int, error) {
	if exp > maxPow10Exp {
		return nil, fmt.Errorf("10^%d: %w", exp, common.ErrOverflow)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp))), nil
}

// CheckDecimals rejects an asset precision above MaxDecimals
func CheckDecimals(decimals uint8) error {
	if decimals > MaxDecimals {
		return fmt.Errorf(
			"%d decimals: %w",
			decimals,
			common.ErrParameterOutOfRange,
		)
	}
	return nil
}

// ToDecimal converts an amount in micro units to a decimal amount with the
// given number of decimal places. The conversion is exact.
func ToDecimal(amountMicro uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(
		new(big.Int).SetUint64(amountMicro),
		-int32(decimals),
	)
}

// ToMicro converts a decimal amount back to micro units, discarding any
// precision beyond the asset's decimals
func ToMicro(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf(
			"negative amount %s: %w",
			amount.String(),
			common.ErrParameterOutOfRange,
		)
	}
	micro := amount.Shift(int32(decimals)).Floor().BigInt()
	if !micro.IsUint64() {
		return 0, fmt.Errorf(
			"amount %s with %d decimals exceeds uint64: %w",
			amount.String(),
			decimals,
			common.ErrOverflow,
		)
	}
	return micro.Uint64(), nil
}

// PriceToWad converts a decimal USD price into a WAD-scaled integer so that
// settlement-relevant quantities can be derived without floating point.
// Prices that are not strictly positive after scaling are unavailable.
func PriceToWad(price decimal.Decimal) (*uint256.Int, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf(
			"non-positive price %s: %w",
			price.String(),
			common.ErrPriceUnavailable,
		)
	}
	scaled := price.Shift(int32(WadDecimals)).Floor().BigInt()
	wad, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("price %s: %w", price.String(), common.ErrOverflow)
	}
	if wad.IsZero() {
		return nil, fmt.Errorf(
			"price %s below WAD precision: %w",
			price.String(),
			common.ErrPriceUnavailable,
		)
	}
	return wad, nil
}

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

package fixedpoint

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

func TestMulDivFloor(t *testing.T) {
	testDefs := []struct {
		a, b, denom uint64
		expected    uint64
	}{
		{a: 10000, b: 4000, denom: 10000, expected: 4000},
		{a: 7, b: 3, denom: 2, expected: 10},
		{a: 1, b: 1, denom: 3, expected: 0},
		{a: 0, b: 12345, denom: 7, expected: 0},
		{a: math.MaxUint64, b: math.MaxUint64, denom: math.MaxUint64, expected: math.MaxUint64},
		{a: 500_000, b: 1_100_000_000_000_000_000, denom: Wad, expected: 550_000},
	}
	for _, testDef := range testDefs {
		got, err := MulDivFloor(testDef.a, testDef.b, testDef.denom)
		if err != nil {
			t.Fatalf("unexpected error for %d*%d/%d: %v", testDef.a, testDef.b, testDef.denom, err)
		}
		if got != testDef.expected {
			t.Errorf(
				"expected %d*%d/%d = %d, got %d",
				testDef.a,
				testDef.b,
				testDef.denom,
				testDef.expected,
				got,
			)
		}
	}
}

func TestMulDivFloorDivisionByZero(t *testing.T) {
	_, err := MulDivFloor(1, 1, 0)
	if !errors.Is(err, common.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMulDivFloorOverflow(t *testing.T) {
	_, err := MulDivFloor(math.MaxUint64, 2, 1)
	if !errors.Is(err, common.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMulDivFloorWide(t *testing.T) {
	// (2^64-1)^2 does not fit in 64 bits but stays exact in 256
	a := uint256.NewInt(math.MaxUint64)
	z, err := MulDivFloorWide(a, a, uint256.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z.IsUint64() {
		t.Error("expected result wider than 64 bits")
	}
	if _, err := ToUint64(z); !errors.Is(err, common.ErrOverflow) {
		t.Errorf("expected ErrOverflow narrowing, got %v", err)
	}
}

func TestBpsOf(t *testing.T) {
	got, err := BpsOf(1_000_000, 7500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 750_000 {
		t.Errorf("expected 750000, got %d", got)
	}
}

func TestPow10(t *testing.T) {
	testDefs := []struct {
		exp      uint8
		expected string
	}{
		{0, "1"},
		{6, "1000000"},
		{77, "1" + strings.Repeat("0", 77)},
	}
	for _, tc := range testDefs {
		got, err := Pow10(tc.exp)
		if err != nil {
			t.Fatalf("unexpected error for 10^%d: %s", tc.exp, err)
		}
		if got.Dec() != tc.expected {
			t.Errorf("10^%d: expected %s, got %s", tc.exp, tc.expected, got.Dec())
		}
	}
}

func TestPow10Overflow(t *testing.T) {
	// 10^78 does not fit in 256 bits and must not wrap
	for _, exp := range []uint8{78, 100, 255} {
		if _, err := Pow10(exp); !errors.Is(err, common.ErrOverflow) {
			t.Errorf("10^%d: expected ErrOverflow, got %v", exp, err)
		}
	}
}

func TestCheckDecimals(t *testing.T) {
	if err := CheckDecimals(MaxDecimals); err != nil {
		t.Errorf("unexpected error for %d decimals: %s", MaxDecimals, err)
	}
	if err := CheckDecimals(MaxDecimals + 1); !errors.Is(err, common.ErrParameterOutOfRange) {
		t.Errorf("expected ErrParameterOutOfRange, got %v", err)
	}
}

func TestToDecimal(t *testing.T) {
	got := ToDecimal(1_500_000, 6)
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected 1.5, got %s", got.String())
	}
	if !ToDecimal(42, 0).Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected 42, got %s", ToDecimal(42, 0).String())
	}
}

func TestToMicroFloors(t *testing.T) {
	got, err := ToMicro(decimal.RequireFromString("1.2345679"), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_234_567 {
		t.Errorf("expected 1234567, got %d", got)
	}
}

func TestToMicroRoundTrip(t *testing.T) {
	for _, amount := range []uint64{0, 1, 999_999, 1_000_000, 123_456_789_012} {
		got, err := ToMicro(ToDecimal(amount, 6), 6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != amount {
			t.Errorf("expected round trip of %d, got %d", amount, got)
		}
	}
}

func TestToMicroErrors(t *testing.T) {
	if _, err := ToMicro(decimal.NewFromInt(-1), 6); !errors.Is(err, common.ErrParameterOutOfRange) {
		t.Errorf("expected ErrParameterOutOfRange, got %v", err)
	}
	if _, err := ToMicro(decimal.RequireFromString("1e30"), 6); !errors.Is(err, common.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestPriceToWad(t *testing.T) {
	wad, err := PriceToWad(decimal.RequireFromString("0.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wad.Uint64() != Wad/4 {
		t.Errorf("expected %d, got %s", Wad/4, wad.Dec())
	}

	for _, price := range []string{"0", "-1", "0.0000000000000000001"} {
		if _, err := PriceToWad(decimal.RequireFromString(price)); !errors.Is(err, common.ErrPriceUnavailable) {
			t.Errorf("expected ErrPriceUnavailable for price %s, got %v", price, err)
		}
	}
}

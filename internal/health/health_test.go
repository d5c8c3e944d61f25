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

package health

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/shopspring/decimal"
)

func testInput() Input {
	return Input{
		CollateralAmount:        1_000_000_000, // 1000 tokens
		CollateralDecimals:      6,
		CollateralPrice:         decimal.RequireFromString("0.5"),
		DebtAmount:              200_000_000, // 200 tokens
		DebtDecimals:            6,
		DebtPrice:               decimal.NewFromInt(1),
		LtvBps:                  7000,
		LiquidationThresholdBps: 12000,
		AvailableLiquidity:      1_000_000_000_000,
	}
}

func TestEvaluateHealthy(t *testing.T) {
	pos, err := Evaluate(testInput(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pos.CollateralValueUsd.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected collateral value 500, got %s", pos.CollateralValueUsd)
	}
	if !pos.DebtValueUsd.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected debt value 200, got %s", pos.DebtValueUsd)
	}
	if pos.HealthRatio != 2.5 {
		t.Errorf("expected health ratio 2.5, got %f", pos.HealthRatio)
	}
	if pos.IsLiquidatable {
		t.Error("expected healthy position")
	}
	// 500 * 0.7 - 200 = 150
	if !pos.MaxAdditionalBorrowUsd.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected headroom 150, got %s", pos.MaxAdditionalBorrowUsd)
	}
	if pos.MaxBorrow != 150_000_000 {
		t.Errorf("expected max borrow 150000000, got %d", pos.MaxBorrow)
	}
	if pos.BindingConstraint != BorrowConstraintCollateral {
		t.Errorf("expected collateral constraint, got %s", pos.BindingConstraint)
	}
}

func TestEvaluateLiquidityBound(t *testing.T) {
	in := testInput()
	in.AvailableLiquidity = 40_000_000
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.CollateralBorrowCap != 150_000_000 {
		t.Errorf("expected collateral cap 150000000, got %d", pos.CollateralBorrowCap)
	}
	if pos.MaxBorrow != 40_000_000 {
		t.Errorf("expected max borrow 40000000, got %d", pos.MaxBorrow)
	}
	if pos.BindingConstraint != BorrowConstraintLiquidity {
		t.Errorf("expected liquidity constraint, got %s", pos.BindingConstraint)
	}
}

func TestEvaluateNoDebt(t *testing.T) {
	in := testInput()
	in.DebtAmount = 0
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsInf(pos.HealthRatio, 1) {
		t.Errorf("expected infinite health ratio, got %f", pos.HealthRatio)
	}
	if pos.IsLiquidatable {
		t.Error("position without debt can never be liquidatable")
	}
	if pos.HasDebt() {
		t.Error("expected no debt")
	}
}

func TestEvaluateLiquidatableAtThreshold(t *testing.T) {
	in := testInput()
	// 1200 of collateral against 1000 of debt sits exactly on a 120% threshold
	in.CollateralAmount = 1_200_000_000
	in.CollateralPrice = decimal.NewFromInt(1)
	in.DebtAmount = 1_000_000_000
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pos.IsLiquidatable {
		t.Errorf("expected liquidatable at ratio %f", pos.HealthRatio)
	}
	if pos.MaxBorrow != 0 {
		t.Errorf("expected no borrow capacity, got %d", pos.MaxBorrow)
	}

	in.DebtAmount = 999_999_999
	pos, err = Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.IsLiquidatable {
		t.Errorf("expected healthy just above threshold, ratio %f", pos.HealthRatio)
	}
}

func TestEvaluateZeroCollateral(t *testing.T) {
	in := testInput()
	in.CollateralAmount = 0
	in.CollateralPrice = decimal.Zero
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.HealthRatio != 0 {
		t.Errorf("expected health ratio 0, got %f", pos.HealthRatio)
	}
	if !pos.IsLiquidatable {
		t.Error("expected debt without collateral to be liquidatable")
	}
}

func TestEvaluatePriceUnavailable(t *testing.T) {
	in := testInput()
	in.DebtPrice = decimal.Zero
	if _, err := Evaluate(in, Options{ZeroMissingCollateralPrice: true}); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable for debt price, got %v", err)
	}

	in = testInput()
	in.CollateralPrice = decimal.Zero
	if _, err := Evaluate(in, Options{}); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable for collateral price, got %v", err)
	}

	pos, err := Evaluate(in, Options{ZeroMissingCollateralPrice: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pos.CollateralValueUsd.IsZero() {
		t.Errorf("expected zero collateral value, got %s", pos.CollateralValueUsd)
	}
	if !pos.IsLiquidatable {
		t.Error("expected zero-valued collateral to be liquidatable")
	}
}

func TestEvaluateInvalidLtv(t *testing.T) {
	in := testInput()
	in.LtvBps = 10001
	if _, err := Evaluate(in, Options{}); !errors.Is(err, common.ErrParameterOutOfRange) {
		t.Errorf("expected ErrParameterOutOfRange, got %v", err)
	}
}

func TestMaxBorrowNeverRoundsUp(t *testing.T) {
	in := testInput()
	in.DebtAmount = 0
	in.DebtPrice = decimal.NewFromInt(3)
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 350 / 3 = 116.666666...
	if pos.MaxBorrow != 116_666_666 {
		t.Errorf("expected 116666666, got %d", pos.MaxBorrow)
	}
}

func TestPositionMarshalJSON(t *testing.T) {
	in := testInput()
	in.DebtAmount = 0
	pos, err := Evaluate(in, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if ratio, ok := result["healthRatio"]; !ok || ratio != nil {
		t.Errorf("expected null healthRatio, got %v", ratio)
	}
	if result["bindingConstraint"] != "collateral" {
		t.Errorf("expected bindingConstraint 'collateral', got %v", result["bindingConstraint"])
	}
}

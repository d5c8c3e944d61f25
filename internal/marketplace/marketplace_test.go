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

package marketplace_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/health"
	"github.com/blinklabs-io/lendcalc/internal/marketplace"
	"github.com/shopspring/decimal"
)

func evaluate(
	t *testing.T,
	collateral uint64,
	collateralPrice string,
	debt uint64,
	thresholdBps uint64,
) *health.Position {
	t.Helper()
	pos, err := health.Evaluate(
		health.Input{
			CollateralAmount:        collateral,
			CollateralDecimals:      6,
			CollateralPrice:         decimal.RequireFromString(collateralPrice),
			DebtAmount:              debt,
			DebtDecimals:            6,
			DebtPrice:               decimal.NewFromInt(1),
			LtvBps:                  7_500,
			LiquidationThresholdBps: thresholdBps,
		},
		health.Options{},
	)
	if err != nil {
		t.Fatalf("unexpected error evaluating position: %s", err)
	}
	return pos
}

func TestEffectiveRepayCap(t *testing.T) {
	testDefs := []struct {
		liveDebt       uint64
		closeFactorCap uint64
		collateralCap  uint64
		expectedCap    uint64
		expectedBind   marketplace.RepayConstraint
	}{
		{1_000_000, 500_000, 300_000, 300_000, marketplace.RepayConstraintCollateral},
		{1_000_000, 500_000, 900_000, 500_000, marketplace.RepayConstraintCloseFactor},
		{1_000_000, 500_000, 500_000, 500_000, marketplace.RepayConstraintCloseFactor},
		{1_000_000, 1_000_000, 2_000_000, 1_000_000, marketplace.RepayConstraintCloseFactor},
		{0, 0, 0, 0, marketplace.RepayConstraintCloseFactor},
	}
	for _, testDef := range testDefs {
		repayCap, bind := marketplace.EffectiveRepayCap(
			testDef.liveDebt,
			testDef.closeFactorCap,
			testDef.collateralCap,
		)
		if repayCap != testDef.expectedCap {
			t.Errorf("expected cap %d, got %d", testDef.expectedCap, repayCap)
		}
		if bind != testDef.expectedBind {
			t.Errorf("expected %s binding, got %s", testDef.expectedBind, bind)
		}
	}
}

func TestQuoteLiquidation(t *testing.T) {
	testDefs := []struct {
		name               string
		collateral         uint64
		collateralDecimals uint8
		collateralPrice    string
		debt               uint64
		expectedCollCap    uint64
		expectedRepayCap   uint64
		expectedBind       marketplace.RepayConstraint
		expectedSeize      uint64
	}{
		{
			name:               "collateral bound at parity",
			collateral:         315_000,
			collateralDecimals: 6,
			collateralPrice:    "1",
			debt:               1_000_000,
			expectedCollCap:    300_000,
			expectedRepayCap:   300_000,
			expectedBind:       marketplace.RepayConstraintCollateral,
			expectedSeize:      315_000,
		},
		{
			name:               "close factor bound",
			collateral:         2_000_000,
			collateralDecimals: 6,
			collateralPrice:    "0.5",
			debt:               1_000_000,
			expectedCollCap:    952_380,
			expectedRepayCap:   500_000,
			expectedBind:       marketplace.RepayConstraintCloseFactor,
			expectedSeize:      1_050_000,
		},
		{
			name:               "mixed decimals",
			collateral:         800,
			collateralDecimals: 8,
			collateralPrice:    "60000",
			debt:               1_000_000,
			expectedCollCap:    457_142,
			expectedRepayCap:   457_142,
			expectedBind:       marketplace.RepayConstraintCollateral,
			expectedSeize:      799,
		},
	}
	for _, testDef := range testDefs {
		quote, err := marketplace.QuoteLiquidation(
			&health.Position{IsLiquidatable: true},
			marketplace.LiquidationInput{
				LiveDebt:           testDef.debt,
				DebtDecimals:       6,
				DebtPrice:          decimal.NewFromInt(1),
				CollateralAmount:   testDef.collateral,
				CollateralDecimals: testDef.collateralDecimals,
				CollateralPrice:    decimal.RequireFromString(testDef.collateralPrice),
				BonusBps:           500,
			},
		)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", testDef.name, err)
		}
		if quote.CloseFactorCap != testDef.debt/2 {
			t.Errorf(
				"%s: expected close factor cap %d, got %d",
				testDef.name,
				testDef.debt/2,
				quote.CloseFactorCap,
			)
		}
		if quote.CollateralConstrainedCap != testDef.expectedCollCap {
			t.Errorf(
				"%s: expected collateral cap %d, got %d",
				testDef.name,
				testDef.expectedCollCap,
				quote.CollateralConstrainedCap,
			)
		}
		if quote.EffectiveRepayCap != testDef.expectedRepayCap {
			t.Errorf(
				"%s: expected repay cap %d, got %d",
				testDef.name,
				testDef.expectedRepayCap,
				quote.EffectiveRepayCap,
			)
		}
		if quote.BindingConstraint != testDef.expectedBind {
			t.Errorf(
				"%s: expected %s binding, got %s",
				testDef.name,
				testDef.expectedBind,
				quote.BindingConstraint,
			)
		}
		if quote.ExpectedSeize != testDef.expectedSeize {
			t.Errorf(
				"%s: expected seize %d, got %d",
				testDef.name,
				testDef.expectedSeize,
				quote.ExpectedSeize,
			)
		}
	}
}

func TestQuoteLiquidationHealthy(t *testing.T) {
	pos := evaluate(t, 2_000_000, "1", 1_000_000, 12_000)
	_, err := marketplace.QuoteLiquidation(
		pos,
		marketplace.LiquidationInput{
			LiveDebt:           1_000_000,
			DebtDecimals:       6,
			DebtPrice:          decimal.NewFromInt(1),
			CollateralAmount:   2_000_000,
			CollateralDecimals: 6,
			CollateralPrice:    decimal.NewFromInt(1),
		},
	)
	if !errors.Is(err, marketplace.ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestQuoteLiquidationBadInput(t *testing.T) {
	pos := &health.Position{IsLiquidatable: true}
	base := marketplace.LiquidationInput{
		LiveDebt:           1_000_000,
		DebtDecimals:       6,
		DebtPrice:          decimal.NewFromInt(1),
		CollateralAmount:   1_000_000,
		CollateralDecimals: 6,
		CollateralPrice:    decimal.NewFromInt(1),
	}
	in := base
	in.CloseFactorBps = 10_001
	if _, err := marketplace.QuoteLiquidation(pos, in); !errors.Is(err, common.ErrParameterOutOfRange) {
		t.Errorf("expected ErrParameterOutOfRange for close factor, got %v", err)
	}
	in = base
	in.CollateralPrice = decimal.Zero
	if _, err := marketplace.QuoteLiquidation(pos, in); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable for collateral price, got %v", err)
	}
	// Scales past 10^19 are rejected rather than computed from a wrapped power
	for _, decimals := range []uint8{20, 78, 255} {
		in = base
		in.DebtDecimals = decimals
		if _, err := marketplace.QuoteLiquidation(pos, in); !errors.Is(err, common.ErrParameterOutOfRange) {
			t.Errorf("expected ErrParameterOutOfRange for %d debt decimals, got %v", decimals, err)
		}
		in = base
		in.CollateralDecimals = decimals
		if _, err := marketplace.QuoteLiquidation(pos, in); !errors.Is(err, common.ErrParameterOutOfRange) {
			t.Errorf("expected ErrParameterOutOfRange for %d collateral decimals, got %v", decimals, err)
		}
	}
}

func TestQuoteLiquidationCapOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pos := &health.Position{IsLiquidatable: true}
	for i := 0; i < 2000; i++ {
		in := marketplace.LiquidationInput{
			LiveDebt:           rng.Uint64() >> uint(rng.Intn(64)),
			DebtDecimals:       uint8(rng.Intn(10)),
			DebtPrice:          decimal.New(rng.Int63n(1_000_000)+1, -3),
			CollateralAmount:   rng.Uint64() >> uint(rng.Intn(64)),
			CollateralDecimals: uint8(rng.Intn(10)),
			CollateralPrice:    decimal.New(rng.Int63n(1_000_000)+1, -3),
			BonusBps:           uint64(rng.Intn(2_000)),
			CloseFactorBps:     uint64(rng.Intn(10_001)),
		}
		quote, err := marketplace.QuoteLiquidation(pos, in)
		if err != nil {
			t.Fatalf("unexpected error for %+v: %s", in, err)
		}
		if quote.EffectiveRepayCap > quote.CloseFactorCap ||
			quote.EffectiveRepayCap > quote.CollateralConstrainedCap ||
			quote.EffectiveRepayCap > quote.LiveDebt {
			t.Fatalf("repay cap out of order: %+v", quote)
		}
		if quote.ExpectedSeize > in.CollateralAmount {
			t.Fatalf(
				"seize %d exceeds collateral %d",
				quote.ExpectedSeize,
				in.CollateralAmount,
			)
		}
	}
}

func TestQuoteBuyout(t *testing.T) {
	testDefs := []struct {
		name             string
		policy           marketplace.PremiumPolicy
		expectedRate     string
		expectedPremium  uint64
		expectedBuffered uint64
		expectedTotalUsd string
	}{
		{
			name:             "on slope",
			policy:           marketplace.PremiumPolicy{SlopeBps: 1_000, MaxPremiumBps: 1_000, BufferBps: 200},
			expectedRate:     "800",
			expectedPremium:  80_000,
			expectedBuffered: 81_600,
			expectedTotalUsd: "1.0816",
		},
		{
			name:             "capped",
			policy:           marketplace.PremiumPolicy{SlopeBps: 5_000, MaxPremiumBps: 1_000},
			expectedRate:     "1000",
			expectedPremium:  100_000,
			expectedBuffered: 100_000,
			expectedTotalUsd: "1.1",
		},
	}
	// Health 2.0 against a 1.2 threshold
	pos := evaluate(t, 2_000_000, "1", 1_000_000, 12_000)
	for _, testDef := range testDefs {
		quote, err := marketplace.QuoteBuyout(
			pos,
			marketplace.BuyoutInput{
				LiveDebt:     1_000_000,
				DebtDecimals: 6,
				DebtPrice:    decimal.NewFromInt(1),
			},
			testDef.policy,
		)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", testDef.name, err)
		}
		if !quote.PremiumRateBps.Equal(decimal.RequireFromString(testDef.expectedRate)) {
			t.Errorf(
				"%s: expected rate %s, got %s",
				testDef.name,
				testDef.expectedRate,
				quote.PremiumRateBps.String(),
			)
		}
		if quote.DebtRepaymentTokens != 1_000_000 {
			t.Errorf("%s: expected repayment 1000000, got %d", testDef.name, quote.DebtRepaymentTokens)
		}
		if quote.PremiumTokens != testDef.expectedPremium {
			t.Errorf(
				"%s: expected premium %d, got %d",
				testDef.name,
				testDef.expectedPremium,
				quote.PremiumTokens,
			)
		}
		if quote.BufferedPremiumTokens != testDef.expectedBuffered {
			t.Errorf(
				"%s: expected buffered premium %d, got %d",
				testDef.name,
				testDef.expectedBuffered,
				quote.BufferedPremiumTokens,
			)
		}
		if !quote.TotalCostUsd.Equal(decimal.RequireFromString(testDef.expectedTotalUsd)) {
			t.Errorf(
				"%s: expected total cost %s, got %s",
				testDef.name,
				testDef.expectedTotalUsd,
				quote.TotalCostUsd.String(),
			)
		}
	}
}

func TestQuoteBuyoutUnavailable(t *testing.T) {
	policy := marketplace.PremiumPolicy{SlopeBps: 1_000}
	in := marketplace.BuyoutInput{
		LiveDebt:     1_000_000,
		DebtDecimals: 6,
		DebtPrice:    decimal.NewFromInt(1),
	}
	// Exactly at the threshold routes to liquidation
	atThreshold := evaluate(t, 1_200_000, "1", 1_000_000, 12_000)
	if _, err := marketplace.QuoteBuyout(atThreshold, in, policy); !errors.Is(err, marketplace.ErrBuyoutUnavailable) {
		t.Errorf("expected ErrBuyoutUnavailable at threshold, got %v", err)
	}
	noDebt := evaluate(t, 1_200_000, "1", 0, 12_000)
	if _, err := marketplace.QuoteBuyout(noDebt, in, policy); !errors.Is(err, marketplace.ErrBuyoutUnavailable) {
		t.Errorf("expected ErrBuyoutUnavailable without debt, got %v", err)
	}
	healthy := evaluate(t, 2_000_000, "1", 1_000_000, 12_000)
	bad := marketplace.PremiumPolicy{MaxPremiumBps: 10_001}
	if _, err := marketplace.QuoteBuyout(healthy, in, bad); !errors.Is(err, common.ErrParameterOutOfRange) {
		t.Errorf("expected ErrParameterOutOfRange, got %v", err)
	}
}

func TestPremiumRateJustAboveThreshold(t *testing.T) {
	pos := evaluate(t, 1_200_001, "1", 1_000_000, 12_000)
	rate := marketplace.PremiumRateBps(pos, marketplace.PremiumPolicy{SlopeBps: 10_000})
	if !rate.IsPositive() {
		t.Fatalf("expected positive premium rate, got %s", rate.String())
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		t.Fatalf("expected premium rate below 1 bps, got %s", rate.String())
	}
}

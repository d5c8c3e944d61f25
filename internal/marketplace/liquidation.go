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

// Package marketplace prices the two ways a debt position changes hands:
// forced liquidation of an unhealthy position, and a premium-priced buyout
// of a healthy one.
package marketplace

import (
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/blinklabs-io/lendcalc/internal/health"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultCloseFactorBps limits a single liquidation to half the live debt
const DefaultCloseFactorBps uint64 = 5_000

var ErrNotLiquidatable = errors.New("position is not liquidatable")

// RepayConstraint names the limit that bounds a liquidation's repayment
type RepayConstraint int

const (
	RepayConstraintCloseFactor RepayConstraint = iota // Fraction of live debt
	RepayConstraintCollateral                         // Collateral on hand, bonus included
)

func (c RepayConstraint) String() string {
	switch c {
	case RepayConstraintCloseFactor:
		return "closeFactor"
	case RepayConstraintCollateral:
		return "collateral"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler
func (c RepayConstraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// LiquidationInput is the raw position data a liquidation quote needs.
// Amounts are in micro units of their asset.
type LiquidationInput struct {
	LiveDebt           uint64
	DebtDecimals       uint8
	DebtPrice          decimal.Decimal
	CollateralAmount   uint64
	CollateralDecimals uint8
	CollateralPrice    decimal.Decimal
	BonusBps           uint64
	CloseFactorBps     uint64 // 0 selects DefaultCloseFactorBps
}

// LiquidationQuote is the repayment a liquidator may make and the collateral
// it receives. Repaying more than EffectiveRepayCap is refunded by the
// contract when the collateral constraint binds.
type LiquidationQuote struct {
	LiveDebt                 uint64          `json:"liveDebt"`
	CloseFactorCap           uint64          `json:"closeFactorCap"`
	CollateralConstrainedCap uint64          `json:"collateralConstrainedCap"`
	EffectiveRepayCap        uint64          `json:"effectiveRepayCap"`
	BindingConstraint        RepayConstraint `json:"bindingConstraint"`
	BonusBps                 uint64          `json:"bonusBps"`
	ExpectedSeize            uint64          `json:"expectedSeize"`
}

// EffectiveRepayCap returns min(closeFactorCap, collateralCap, liveDebt) and
// the constraint that produced it. Ties go to the close factor.
func EffectiveRepayCap(
	liveDebt uint64,
	closeFactorCap uint64,
	collateralCap uint64,
) (uint64, RepayConstraint) {
	repayCap := min(closeFactorCap, liveDebt)
	if collateralCap < repayCap {
		return collateralCap, RepayConstraintCollateral
	}
	return repayCap, RepayConstraintCloseFactor
}

// QuoteLiquidation computes the repay caps and expected seize for a
// liquidatable position. Everything is derived in the integer domain from
// WAD-scaled prices so the quote matches on-chain settlement.
func QuoteLiquidation(
	pos *health.Position,
	in LiquidationInput,
) (*LiquidationQuote, error) {
	if !pos.IsLiquidatable {
		return nil, ErrNotLiquidatable
	}
	closeFactorBps := in.CloseFactorBps
	if closeFactorBps == 0 {
		closeFactorBps = DefaultCloseFactorBps
	}
	if closeFactorBps > fixedpoint.BpsDenom {
		return nil, fmt.Errorf(
			"close factor %d bps: %w",
			closeFactorBps,
			common.ErrParameterOutOfRange,
		)
	}
	debtPriceWad, err := fixedpoint.PriceToWad(in.DebtPrice)
	if err != nil {
		return nil, fmt.Errorf("debt price: %w", err)
	}
	collateralPriceWad, err := fixedpoint.PriceToWad(in.CollateralPrice)
	if err != nil {
		return nil, fmt.Errorf("collateral price: %w", err)
	}
	if in.BonusBps > fixedpoint.BpsDenom {
		return nil, fmt.Errorf(
			"bonus %d bps: %w",
			in.BonusBps,
			common.ErrParameterOutOfRange,
		)
	}
	bonusScale := uint256.NewInt(fixedpoint.BpsDenom + in.BonusBps)
	if err := fixedpoint.CheckDecimals(in.DebtDecimals); err != nil {
		return nil, fmt.Errorf("debt asset: %w", err)
	}
	if err := fixedpoint.CheckDecimals(in.CollateralDecimals); err != nil {
		return nil, fmt.Errorf("collateral asset: %w", err)
	}
	debtScale, err := fixedpoint.Pow10(in.DebtDecimals)
	if err != nil {
		return nil, err
	}
	collateralScale, err := fixedpoint.Pow10(in.CollateralDecimals)
	if err != nil {
		return nil, err
	}

	closeFactorCap, err := fixedpoint.BpsOf(in.LiveDebt, closeFactorBps)
	if err != nil {
		return nil, err
	}

	// Largest repayment whose bonus-inclusive value fits in the collateral:
	// collateral * Pc * 10^dd * 10000 / (Pd * 10^dc * (10000 + bonus))
	collateralCapWide, err := ratio(
		[]*uint256.Int{
			uint256.NewInt(in.CollateralAmount),
			collateralPriceWad,
			debtScale,
			uint256.NewInt(fixedpoint.BpsDenom),
		},
		[]*uint256.Int{
			debtPriceWad,
			collateralScale,
			bonusScale,
		},
	)
	if err != nil {
		return nil, err
	}
	// Beyond 64 bits the cap can never bind against a uint64 debt
	collateralCap := uint64(math.MaxUint64)
	if collateralCapWide.IsUint64() {
		collateralCap = collateralCapWide.Uint64()
	}

	repayCap, binding := EffectiveRepayCap(in.LiveDebt, closeFactorCap, collateralCap)

	seize, err := ratio(
		[]*uint256.Int{
			uint256.NewInt(repayCap),
			debtPriceWad,
			collateralScale,
			bonusScale,
		},
		[]*uint256.Int{
			collateralPriceWad,
			debtScale,
			uint256.NewInt(fixedpoint.BpsDenom),
		},
	)
	if err != nil {
		return nil, err
	}
	expectedSeize, err := fixedpoint.ToUint64(seize)
	if err != nil {
		return nil, err
	}

	return &LiquidationQuote{
		LiveDebt:                 in.LiveDebt,
		CloseFactorCap:           closeFactorCap,
		CollateralConstrainedCap: collateralCap,
		EffectiveRepayCap:        repayCap,
		BindingConstraint:        binding,
		BonusBps:                 in.BonusBps,
		ExpectedSeize:            expectedSeize,
	}, nil
}

// ratio returns floor(prod(num) / prod(den)), failing if either product
// overflows 256 bits
func ratio(num, den []*uint256.Int) (*uint256.Int, error) {
	n, err := product(num)
	if err != nil {
		return nil, err
	}
	d, err := product(den)
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, common.ErrDivisionByZero
	}
	return new(uint256.Int).Div(n, d), nil
}

func product(factors []*uint256.Int) (*uint256.Int, error) {
	acc := uint256.NewInt(1)
	for _, f := range factors {
		var overflow bool
		acc, overflow = new(uint256.Int).MulOverflow(acc, f)
		if overflow {
			return nil, common.ErrOverflow
		}
	}
	return acc, nil
}

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

// Package health values a collateralized position in USD and classifies it
// against its liquidation threshold.
//
// USD figures here are for display and risk classification. Nothing computed
// in this package feeds an integer settlement amount except MaxBorrow, which
// is floored into the borrow token's micro units.
package health

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/shopspring/decimal"
)

// BorrowConstraint names the limit that bounds additional borrowing
type BorrowConstraint int

const (
	BorrowConstraintCollateral BorrowConstraint = iota // LTV against collateral value
	BorrowConstraintLiquidity                          // Pool's available liquidity
)

func (c BorrowConstraint) String() string {
	switch c {
	case BorrowConstraintCollateral:
		return "collateral"
	case BorrowConstraintLiquidity:
		return "liquidity"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler
func (c BorrowConstraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Input describes a position and the prices to value it at. Amounts are in
// micro units of their asset.
type Input struct {
	CollateralAmount        uint64
	CollateralDecimals      uint8
	CollateralPrice         decimal.Decimal
	DebtAmount              uint64
	DebtDecimals            uint8
	DebtPrice               decimal.Decimal
	LtvBps                  uint64
	LiquidationThresholdBps uint64
	// AvailableLiquidity is what the pool can still lend, in debt micro units
	AvailableLiquidity uint64
}

// Options holds protocol-policy choices for degenerate price input
type Options struct {
	// ZeroMissingCollateralPrice values collateral at $0 when its price is
	// unavailable instead of failing. This understates health, never
	// overstates it. There is no equivalent for the debt price.
	ZeroMissingCollateralPrice bool
}

// Position is the evaluated state of a borrower's position
type Position struct {
	CollateralValueUsd      decimal.Decimal  `json:"collateralValueUsd"`
	DebtValueUsd            decimal.Decimal  `json:"debtValueUsd"`
	HealthRatio             float64          `json:"-"` // +Inf when there is no debt
	LiquidationThresholdBps uint64           `json:"liquidationThresholdBps"`
	IsLiquidatable          bool             `json:"isLiquidatable"`
	MaxAdditionalBorrowUsd  decimal.Decimal  `json:"maxAdditionalBorrowUsd"`
	CollateralBorrowCap     uint64           `json:"collateralBorrowCap"`
	MaxBorrow               uint64           `json:"maxBorrow"`
	BindingConstraint       BorrowConstraint `json:"bindingConstraint"`
}

// HasDebt returns true if the position carries debt
func (p Position) HasDebt() bool {
	return p.DebtValueUsd.IsPositive()
}

// MarshalJSON implements json.Marshaler, encoding an infinite health ratio
// as null
func (p Position) MarshalJSON() ([]byte, error) {
	type Alias Position
	var ratio *float64
	if !math.IsInf(p.HealthRatio, 1) {
		ratio = &p.HealthRatio
	}
	return json.Marshal(&struct {
		Alias
		HealthRatio *float64 `json:"healthRatio"`
	}{
		Alias:       Alias(p),
		HealthRatio: ratio,
	})
}

// Value returns the USD value of an amount in micro units
func Value(amount uint64, decimals uint8, price decimal.Decimal) decimal.Decimal {
	return fixedpoint.ToDecimal(amount, decimals).Mul(price)
}

// Evaluate values the position and derives its health ratio, liquidation
// status and remaining borrow capacity
func Evaluate(in Input, opts Options) (*Position, error) {
	if in.LtvBps > fixedpoint.BpsDenom {
		return nil, fmt.Errorf(
			"LTV %d bps: %w",
			in.LtvBps,
			common.ErrParameterOutOfRange,
		)
	}
	// The debt price also converts borrow capacity, so it is always required
	if !in.DebtPrice.IsPositive() {
		return nil, fmt.Errorf(
			"debt price %s: %w",
			in.DebtPrice.String(),
			common.ErrPriceUnavailable,
		)
	}
	collateralValue := decimal.Zero
	if in.CollateralAmount > 0 {
		switch {
		case in.CollateralPrice.IsPositive():
			collateralValue = Value(
				in.CollateralAmount,
				in.CollateralDecimals,
				in.CollateralPrice,
			)
		case opts.ZeroMissingCollateralPrice:
			// Valued at zero by policy
		default:
			return nil, fmt.Errorf(
				"collateral price %s: %w",
				in.CollateralPrice.String(),
				common.ErrPriceUnavailable,
			)
		}
	}
	debtValue := Value(in.DebtAmount, in.DebtDecimals, in.DebtPrice)

	pos := &Position{
		CollateralValueUsd:      collateralValue,
		DebtValueUsd:            debtValue,
		HealthRatio:             math.Inf(1),
		LiquidationThresholdBps: in.LiquidationThresholdBps,
	}
	if debtValue.IsPositive() {
		pos.HealthRatio = collateralValue.Div(debtValue).InexactFloat64()
		// collateral/debt <= threshold/10000, compared without division
		lhs := collateralValue.Mul(bpsDenomDecimal)
		rhs := debtValue.Mul(fixedpoint.ToDecimal(in.LiquidationThresholdBps, 0))
		pos.IsLiquidatable = lhs.LessThanOrEqual(rhs)
	}

	borrowLimit := collateralValue.
		Mul(fixedpoint.ToDecimal(in.LtvBps, 0)).
		Div(bpsDenomDecimal)
	headroom := borrowLimit.Sub(debtValue)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	pos.MaxAdditionalBorrowUsd = headroom

	// Truncated division keeps the token amount from rounding up
	tokens, _ := headroom.QuoRem(in.DebtPrice, int32(in.DebtDecimals))
	collateralCap, err := fixedpoint.ToMicro(tokens, in.DebtDecimals)
	if err != nil {
		return nil, err
	}
	pos.CollateralBorrowCap = collateralCap
	pos.MaxBorrow = collateralCap
	pos.BindingConstraint = BorrowConstraintCollateral
	if in.AvailableLiquidity < collateralCap {
		pos.MaxBorrow = in.AvailableLiquidity
		pos.BindingConstraint = BorrowConstraintLiquidity
	}
	return pos, nil
}

var bpsDenomDecimal = fixedpoint.ToDecimal(fixedpoint.BpsDenom, 0)

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

package marketplace

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/blinklabs-io/lendcalc/internal/health"
	"github.com/shopspring/decimal"
)

var ErrBuyoutUnavailable = errors.New("buyout unavailable")

// PremiumPolicy is the protocol's buyout premium schedule
type PremiumPolicy struct {
	// SlopeBps is the premium rate, in bps, per 10000 bps of health ratio
	// above the liquidation threshold
	SlopeBps uint64 `yaml:"slopeBps" json:"slopeBps"`
	// MaxPremiumBps caps the premium rate. 0 means uncapped.
	MaxPremiumBps uint64 `yaml:"maxPremiumBps" json:"maxPremiumBps"`
	// BufferBps is added on top of the premium to absorb debt drift between
	// quote and settlement
	BufferBps uint64 `yaml:"bufferBps" json:"bufferBps"`
}

// Validate returns an error if the policy cannot produce a sane premium
func (p PremiumPolicy) Validate() error {
	if p.MaxPremiumBps > fixedpoint.BpsDenom {
		return fmt.Errorf(
			"max premium %d bps: %w",
			p.MaxPremiumBps,
			common.ErrParameterOutOfRange,
		)
	}
	if p.BufferBps > fixedpoint.BpsDenom {
		return fmt.Errorf(
			"premium buffer %d bps: %w",
			p.BufferBps,
			common.ErrParameterOutOfRange,
		)
	}
	return nil
}

// BuyoutInput is the debt side of a buyout quote
type BuyoutInput struct {
	LiveDebt     uint64
	DebtDecimals uint8
	DebtPrice    decimal.Decimal
}

// BuyoutQuote prices taking over a healthy debt position. The buyer pays
// DebtRepaymentTokens plus BufferedPremiumTokens; anything above the premium
// owed at settlement is refunded.
type BuyoutQuote struct {
	DebtRepaymentTokens   uint64          `json:"debtRepaymentTokens"`
	PremiumRateBps        decimal.Decimal `json:"premiumRateBps"`
	PremiumUsd            decimal.Decimal `json:"premiumUsd"`
	PremiumTokens         uint64          `json:"premiumTokens"`
	BufferedPremiumTokens uint64          `json:"bufferedPremiumTokens"`
	TotalCostUsd          decimal.Decimal `json:"totalCostUsd"`
}

// PremiumRateBps returns the premium rate for a position: zero at the
// liquidation threshold, rising by SlopeBps per 10000 bps of health above it
// and capped at MaxPremiumBps.
func PremiumRateBps(pos *health.Position, policy PremiumPolicy) decimal.Decimal {
	if !pos.HasDebt() {
		return decimal.Zero
	}
	healthBps := pos.CollateralValueUsd.Mul(bpsDecimal).Div(pos.DebtValueUsd)
	excessBps := healthBps.Sub(fixedpoint.ToDecimal(pos.LiquidationThresholdBps, 0))
	if !excessBps.IsPositive() {
		return decimal.Zero
	}
	rate := excessBps.Mul(fixedpoint.ToDecimal(policy.SlopeBps, 0)).Div(bpsDecimal)
	if policy.MaxPremiumBps > 0 {
		rate = decimal.Min(rate, fixedpoint.ToDecimal(policy.MaxPremiumBps, 0))
	}
	return rate
}

// QuoteBuyout prices a buyout of a position whose health ratio is strictly
// above its liquidation threshold
func QuoteBuyout(
	pos *health.Position,
	in BuyoutInput,
	policy PremiumPolicy,
) (*BuyoutQuote, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if !pos.HasDebt() {
		return nil, fmt.Errorf("%w: position has no debt", ErrBuyoutUnavailable)
	}
	if pos.IsLiquidatable {
		return nil, fmt.Errorf(
			"%w: position is at or below its liquidation threshold",
			ErrBuyoutUnavailable,
		)
	}
	if !in.DebtPrice.IsPositive() {
		return nil, fmt.Errorf(
			"debt price %s: %w",
			in.DebtPrice.String(),
			common.ErrPriceUnavailable,
		)
	}

	rateBps := PremiumRateBps(pos, policy)
	equity := pos.CollateralValueUsd.Sub(pos.DebtValueUsd)
	if equity.IsNegative() {
		equity = decimal.Zero
	}
	premiumUsd := equity.Mul(rateBps).Div(bpsDecimal)

	tokens, _ := premiumUsd.QuoRem(in.DebtPrice, int32(in.DebtDecimals))
	premiumTokens, err := fixedpoint.ToMicro(tokens, in.DebtDecimals)
	if err != nil {
		return nil, err
	}
	buffered, err := fixedpoint.MulDivFloor(
		premiumTokens,
		fixedpoint.BpsDenom+policy.BufferBps,
		fixedpoint.BpsDenom,
	)
	if err != nil {
		return nil, err
	}
	if buffered > ^uint64(0)-in.LiveDebt {
		return nil, common.ErrOverflow
	}
	totalCost := health.Value(in.LiveDebt+buffered, in.DebtDecimals, in.DebtPrice)

	return &BuyoutQuote{
		DebtRepaymentTokens:   in.LiveDebt,
		PremiumRateBps:        rateBps,
		PremiumUsd:            premiumUsd,
		PremiumTokens:         premiumTokens,
		BufferedPremiumTokens: buffered,
		TotalCostUsd:          totalCost,
	}, nil
}

var bpsDecimal = fixedpoint.ToDecimal(fixedpoint.BpsDenom, 0)

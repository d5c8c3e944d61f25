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

// Package ratemodel implements pool utilization and the two-slope kinked
// borrow rate curve, plus the supply rate derived from it.
package ratemodel

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// ModelType selects how the borrow rate responds to utilization
type ModelType uint64

const (
	ModelTypeKinked ModelType = iota // Two-slope curve with a kink
	ModelTypeFixed                   // Constant base rate
)

func (m ModelType) String() string {
	switch m {
	case ModelTypeKinked:
		return "kinked"
	case ModelTypeFixed:
		return "fixed"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(m))
	}
}

// Params are the rate model parameters of a market, all in basis points
type Params struct {
	BaseBps     uint64    `json:"baseBps"     yaml:"baseBps"`
	UtilCapBps  uint64    `json:"utilCapBps"  yaml:"utilCapBps"`
	KinkNormBps uint64    `json:"kinkNormBps" yaml:"kinkNormBps"`
	Slope1Bps   uint64    `json:"slope1Bps"   yaml:"slope1Bps"`
	Slope2Bps   uint64    `json:"slope2Bps"   yaml:"slope2Bps"`
	MaxAprBps   uint64    `json:"maxAprBps"   yaml:"maxAprBps"` // 0 = uncapped
	ModelType   ModelType `json:"modelType"   yaml:"modelType"`
}

// Validate checks the parameters against their documented ranges
func (p Params) Validate() error {
	if p.UtilCapBps == 0 || p.UtilCapBps > fixedpoint.BpsDenom {
		return fmt.Errorf(
			"utilization cap %d bps: %w",
			p.UtilCapBps,
			common.ErrParameterOutOfRange,
		)
	}
	if p.KinkNormBps > fixedpoint.BpsDenom {
		return fmt.Errorf(
			"kink %d bps: %w",
			p.KinkNormBps,
			common.ErrParameterOutOfRange,
		)
	}
	if p.MaxAprBps != 0 && p.MaxAprBps < p.BaseBps {
		return fmt.Errorf(
			"max APR %d bps below base %d bps: %w",
			p.MaxAprBps,
			p.BaseBps,
			common.ErrParameterOutOfRange,
		)
	}
	if p.ModelType != ModelTypeKinked && p.ModelType != ModelTypeFixed {
		return fmt.Errorf(
			"model type %s: %w",
			p.ModelType,
			common.ErrParameterOutOfRange,
		)
	}
	return nil
}

// BorrowAPR returns the annualized borrow rate in basis points for a
// normalized utilization
func BorrowAPR(normalizedUtilBps uint64, p Params) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if normalizedUtilBps > fixedpoint.BpsDenom {
		return 0, fmt.Errorf(
			"normalized utilization %d bps: %w",
			normalizedUtilBps,
			common.ErrParameterOutOfRange,
		)
	}
	if p.ModelType == ModelTypeFixed {
		return p.BaseBps, nil
	}
	var apr uint64
	var err error
	// At the kink itself the pre-kink branch is authoritative
	if normalizedUtilBps <= p.KinkNormBps {
		apr, err = preKinkAPR(normalizedUtilBps, p)
	} else {
		apr, err = postKinkAPR(normalizedUtilBps, p)
	}
	if err != nil {
		return 0, err
	}
	if p.MaxAprBps > 0 && apr > p.MaxAprBps {
		apr = p.MaxAprBps
	}
	return apr, nil
}

func preKinkAPR(normalizedUtilBps uint64, p Params) (uint64, error) {
	slope, err := fixedpoint.BpsOf(p.Slope1Bps, normalizedUtilBps)
	if err != nil {
		return 0, err
	}
	return addBps(p.BaseBps, slope)
}

func postKinkAPR(normalizedUtilBps uint64, p Params) (uint64, error) {
	aprAtKink, err := preKinkAPR(p.KinkNormBps, p)
	if err != nil {
		return 0, err
	}
	excess := normalizedUtilBps - p.KinkNormBps
	jump, err := fixedpoint.BpsOf(p.Slope2Bps, excess)
	if err != nil {
		return 0, err
	}
	return addBps(aprAtKink, jump)
}

func addBps(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%d + %d bps: %w", a, b, common.ErrOverflow)
	}
	return a + b, nil
}

// SupplyAPR derives the lender rate from the borrow rate:
// borrowApr * (normalizedUtil/10000) * (1 - protocolShare/10000), floored once.
// It takes the normalized utilization so it shares the borrow curve's domain.
func SupplyAPR(
	borrowAprBps uint64,
	normalizedUtilBps uint64,
	protocolShareBps uint64,
) (uint64, error) {
	if normalizedUtilBps > fixedpoint.BpsDenom {
		return 0, fmt.Errorf(
			"normalized utilization %d bps: %w",
			normalizedUtilBps,
			common.ErrParameterOutOfRange,
		)
	}
	if protocolShareBps > fixedpoint.BpsDenom {
		return 0, fmt.Errorf(
			"protocol share %d bps: %w",
			protocolShareBps,
			common.ErrParameterOutOfRange,
		)
	}
	weighted := new(uint256.Int).Mul(
		uint256.NewInt(borrowAprBps),
		uint256.NewInt(normalizedUtilBps),
	)
	z, err := fixedpoint.MulDivFloorWide(
		weighted,
		uint256.NewInt(fixedpoint.BpsDenom-protocolShareBps),
		uint256.NewInt(fixedpoint.BpsDenom*fixedpoint.BpsDenom),
	)
	if err != nil {
		return 0, err
	}
	return fixedpoint.ToUint64(z)
}

// AprToApy converts an APR in basis points to a display APY compounded
// periodsPerYear times. Zero periods means simple interest.
func AprToApy(aprBps uint64, periodsPerYear uint64) float64 {
	apr := float64(aprBps) / float64(fixedpoint.BpsDenom)
	if periodsPerYear == 0 {
		return apr
	}
	n := float64(periodsPerYear)
	return math.Expm1(n * math.Log1p(apr/n))
}

// Rates is the full rate picture of a pool at one snapshot
type Rates struct {
	Utilization  Utilization `json:"utilization"`
	BorrowAprBps uint64      `json:"borrowAprBps"`
	SupplyAprBps uint64      `json:"supplyAprBps"`
}

// ComputeRates runs utilization, the borrow curve and the supply derivation
// for a pool
func ComputeRates(
	totalDeposits uint64,
	totalBorrows uint64,
	protocolShareBps uint64,
	p Params,
) (Rates, error) {
	if err := p.Validate(); err != nil {
		return Rates{}, err
	}
	util, err := ComputeUtilization(totalDeposits, totalBorrows, p.UtilCapBps)
	if err != nil {
		return Rates{}, err
	}
	borrowApr, err := BorrowAPR(util.NormalizedBps, p)
	if err != nil {
		return Rates{}, err
	}
	supplyApr, err := SupplyAPR(borrowApr, util.NormalizedBps, protocolShareBps)
	if err != nil {
		return Rates{}, err
	}
	return Rates{
		Utilization:  util,
		BorrowAprBps: borrowApr,
		SupplyAprBps: supplyApr,
	}, nil
}

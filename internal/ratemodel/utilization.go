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

package ratemodel

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
)

// Utilization holds each stage of the utilization calculation in basis points
type Utilization struct {
	RawBps        uint64 `json:"rawBps"`
	CappedBps     uint64 `json:"cappedBps"`
	NormalizedBps uint64 `json:"normalizedBps"`
}

// ComputeUtilization returns the raw, capped and normalized utilization of a
// pool. An empty pool is 0% utilized. Borrows exceeding deposits are clamped
// to the cap rather than treated as a fault.
func ComputeUtilization(
	totalDeposits uint64,
	totalBorrows uint64,
	utilCapBps uint64,
) (Utilization, error) {
	if utilCapBps == 0 || utilCapBps > fixedpoint.BpsDenom {
		return Utilization{}, fmt.Errorf(
			"utilization cap %d bps: %w",
			utilCapBps,
			common.ErrParameterOutOfRange,
		)
	}
	if totalDeposits == 0 {
		return Utilization{}, nil
	}
	rawBps, err := fixedpoint.MulDivFloor(
		totalBorrows,
		fixedpoint.BpsDenom,
		totalDeposits,
	)
	if err != nil {
		// Only reachable when borrows exceed deposits by more than 2^64/1e4
		rawBps = math.MaxUint64
	}
	cappedBps := min(rawBps, utilCapBps)
	normalizedBps, err := fixedpoint.MulDivFloor(
		cappedBps,
		fixedpoint.BpsDenom,
		utilCapBps,
	)
	if err != nil {
		return Utilization{}, err
	}
	return Utilization{
		RawBps:        rawBps,
		CappedBps:     cappedBps,
		NormalizedBps: normalizedBps,
	}, nil
}

// NormalizedUtilization returns utilization re-expressed as a fraction of the
// utilization cap, always in [0, 10000]
func NormalizedUtilization(
	totalDeposits uint64,
	totalBorrows uint64,
	utilCapBps uint64,
) (uint64, error) {
	util, err := ComputeUtilization(totalDeposits, totalBorrows, utilCapBps)
	if err != nil {
		return 0, err
	}
	return util.NormalizedBps, nil
}

// AvailableLiquidity returns the amount available for borrowing
func AvailableLiquidity(totalDeposits, totalBorrows uint64) uint64 {
	if totalDeposits <= totalBorrows {
		return 0
	}
	return totalDeposits - totalBorrows
}

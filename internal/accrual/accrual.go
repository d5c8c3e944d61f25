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

// Package accrual derives a borrower's live debt from a principal snapshot and
// the protocol-wide borrow index, both as recorded on chain.
package accrual

import (
	"fmt"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// SecondsPerYear is the year length used to annualize borrow rates
const SecondsPerYear uint64 = 365 * 24 * 60 * 60

// Snapshot is a borrower's principal and the borrow index it was recorded at
type Snapshot struct {
	Principal        uint64 `json:"principal"`
	SnapshotIndexWad uint64 `json:"snapshotIndexWad"`
	GlobalIndexWad   uint64 `json:"globalIndexWad"`
}

// LiveDebt returns principal scaled by the index growth since the snapshot,
// floored. A zero index on either side means there is no accrual basis yet
// and the principal is returned unchanged. A snapshot index ahead of the
// global index can only come from stale or corrupted input.
func LiveDebt(
	principal uint64,
	snapshotIndexWad uint64,
	globalIndexWad uint64,
) (uint64, error) {
	if snapshotIndexWad == 0 || globalIndexWad == 0 {
		return principal, nil
	}
	if snapshotIndexWad > globalIndexWad {
		return 0, fmt.Errorf(
			"snapshot index %d ahead of global index %d: %w",
			snapshotIndexWad,
			globalIndexWad,
			common.ErrInconsistentSnapshot,
		)
	}
	return fixedpoint.MulDivFloor(principal, globalIndexWad, snapshotIndexWad)
}

// LiveDebt returns the snapshot's live debt
func (s Snapshot) LiveDebt() (uint64, error) {
	return LiveDebt(s.Principal, s.SnapshotIndexWad, s.GlobalIndexWad)
}

// AccruedInterest returns live debt minus principal
func (s Snapshot) AccruedInterest() (uint64, error) {
	live, err := s.LiveDebt()
	if err != nil {
		return 0, err
	}
	return live - s.Principal, nil
}

// ProjectIndex estimates the borrow index after elapsedSeconds at a constant
// APR using the simple-interest step the contract applies between updates:
// index + floor(index * aprBps * elapsed / (10000 * SecondsPerYear))
func ProjectIndex(
	globalIndexWad uint64,
	aprBps uint64,
	elapsedSeconds uint64,
) (uint64, error) {
	if globalIndexWad == 0 || aprBps == 0 || elapsedSeconds == 0 {
		return globalIndexWad, nil
	}
	rateTime := new(uint256.Int).Mul(
		uint256.NewInt(aprBps),
		uint256.NewInt(elapsedSeconds),
	)
	growth, err := fixedpoint.MulDivFloorWide(
		uint256.NewInt(globalIndexWad),
		rateTime,
		new(uint256.Int).Mul(
			uint256.NewInt(fixedpoint.BpsDenom),
			uint256.NewInt(SecondsPerYear),
		),
	)
	if err != nil {
		return 0, err
	}
	next := new(uint256.Int).Add(uint256.NewInt(globalIndexWad), growth)
	return fixedpoint.ToUint64(next)
}

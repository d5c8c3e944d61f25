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

// Package shares prices a pooled, share-based deposit vault. Depositors
// receive liquid staking tokens (shares) that redeem for a growing amount of
// the underlying asset as interest accrues.
//
// Settlement paths use SharesDue and AssetsDue, which floor exactly like the
// on-chain contract. Price is for display only.
package shares

import (
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
)

// SharesDue returns the shares minted for a deposit. The first deposit into
// an empty pool mints 1:1.
func SharesDue(
	depositAmount uint64,
	circulatingShares uint64,
	totalDeposits uint64,
) (uint64, error) {
	if totalDeposits == 0 {
		return depositAmount, nil
	}
	return fixedpoint.MulDivFloor(depositAmount, circulatingShares, totalDeposits)
}

// AssetsDue returns the underlying paid out for redeeming shares. With no
// shares outstanding nothing is redeemable, even if deposits are non-zero.
func AssetsDue(
	shareAmount uint64,
	circulatingShares uint64,
	totalDeposits uint64,
) (uint64, error) {
	if circulatingShares == 0 {
		return 0, nil
	}
	return fixedpoint.MulDivFloor(shareAmount, totalDeposits, circulatingShares)
}

// Price returns the underlying value of one share as a display ratio
func Price(circulatingShares, totalDeposits uint64) float64 {
	if circulatingShares == 0 {
		return 1.0
	}
	return float64(totalDeposits) / float64(circulatingShares)
}

// PriceWad returns the underlying value of one share scaled by 1e18, floored
func PriceWad(circulatingShares, totalDeposits uint64) (uint64, error) {
	if circulatingShares == 0 {
		return fixedpoint.Wad, nil
	}
	return fixedpoint.MulDivFloor(totalDeposits, fixedpoint.Wad, circulatingShares)
}

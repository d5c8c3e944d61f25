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

package market

import (
	"time"

	"github.com/blinklabs-io/lendcalc/internal/accrual"
	"github.com/blinklabs-io/lendcalc/internal/chainstate"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/ratemodel"
	"github.com/blinklabs-io/lendcalc/internal/shares"
)

// Summary is the market-level view of a snapshot
type Summary struct {
	Name                    string                   `json:"name"`
	AppId                   uint64                   `json:"appId"`
	ContractState           chainstate.ContractState `json:"contractState"`
	Active                  bool                     `json:"active"`
	BaseAssetId             common.AssetId           `json:"baseAssetId"`
	LstAssetId              common.AssetId           `json:"lstAssetId"`
	TotalDeposits           uint64                   `json:"totalDeposits"`
	TotalBorrows            uint64                   `json:"totalBorrows"`
	AvailableLiquidity      uint64                   `json:"availableLiquidity"`
	Utilization             ratemodel.Utilization    `json:"utilization"`
	BorrowAprBps            uint64                   `json:"borrowAprBps"`
	SupplyAprBps            uint64                   `json:"supplyAprBps"`
	BorrowApy               float64                  `json:"borrowApy"`
	SupplyApy               float64                  `json:"supplyApy"`
	SharePrice              float64                  `json:"sharePrice"`
	SharePriceWad           uint64                   `json:"sharePriceWad"`
	BorrowIndexWad          uint64                   `json:"borrowIndexWad"`
	ProjectedBorrowIndexWad uint64                   `json:"projectedBorrowIndexWad"`
	RateModel               ratemodel.Params         `json:"rateModel"`
	LtvBps                  uint64                   `json:"ltvBps"`
	LiquidationThresholdBps uint64                   `json:"liquidationThresholdBps"`
	LiquidationBonusBps     uint64                   `json:"liquidationBonusBps"`
	LastUpdate              time.Time                `json:"lastUpdate"`
}

// Summarize derives rates, liquidity and share pricing for a market
func (s *Service) Summarize(snap *Snapshot) (*Summary, error) {
	m := snap.State
	rates, err := ratemodel.ComputeRates(
		m.TotalDeposits,
		m.TotalBorrows,
		m.ProtocolShareBps,
		m.RateModel,
	)
	if err != nil {
		return nil, err
	}
	sharePriceWad, err := shares.PriceWad(m.CirculatingLst, m.TotalDeposits)
	if err != nil {
		return nil, err
	}
	projected, err := s.projectIndex(m, rates.BorrowAprBps)
	if err != nil {
		return nil, err
	}
	ret := &Summary{
		Name:                    snap.Config.Name,
		AppId:                   snap.Config.AppId,
		ContractState:           m.ContractState,
		Active:                  m.IsActive(),
		BaseAssetId:             m.BaseAssetId,
		LstAssetId:              m.LstAssetId,
		TotalDeposits:           m.TotalDeposits,
		TotalBorrows:            m.TotalBorrows,
		AvailableLiquidity:      ratemodel.AvailableLiquidity(m.TotalDeposits, m.TotalBorrows),
		Utilization:             rates.Utilization,
		BorrowAprBps:            rates.BorrowAprBps,
		SupplyAprBps:            rates.SupplyAprBps,
		BorrowApy:               ratemodel.AprToApy(rates.BorrowAprBps, s.policy.CompoundingPeriodsPerYear),
		SupplyApy:               ratemodel.AprToApy(rates.SupplyAprBps, s.policy.CompoundingPeriodsPerYear),
		SharePrice:              shares.Price(m.CirculatingLst, m.TotalDeposits),
		SharePriceWad:           sharePriceWad,
		BorrowIndexWad:          m.BorrowIndexWad,
		ProjectedBorrowIndexWad: projected,
		RateModel:               m.RateModel,
		LtvBps:                  m.LtvBps,
		LiquidationThresholdBps: m.LiquidationThresholdBps,
		LiquidationBonusBps:     snap.bonusBps(),
		LastUpdate:              m.LastUpdate,
	}
	s.logger.Debug(
		"summarized market",
		"market", snap.Config.AppId,
		"utilizationBps", rates.Utilization.NormalizedBps,
		"borrowAprBps", rates.BorrowAprBps,
	)
	return ret, nil
}

// projectIndex estimates the borrow index at the current time from the last
// on-chain update. A market that was never updated has nothing to project.
func (s *Service) projectIndex(m *chainstate.Market, borrowAprBps uint64) (uint64, error) {
	if m.LastUpdate.Unix() <= 0 {
		return m.BorrowIndexWad, nil
	}
	var elapsed uint64
	if now := s.now(); now.After(m.LastUpdate) {
		elapsed = uint64(now.Sub(m.LastUpdate) / time.Second)
	}
	return accrual.ProjectIndex(m.BorrowIndexWad, borrowAprBps, elapsed)
}

// QuoteDeposit returns the shares minted for depositing amount
func QuoteDeposit(m *chainstate.Market, amount uint64) (uint64, error) {
	return shares.SharesDue(amount, m.CirculatingLst, m.TotalDeposits)
}

// QuoteRedeem returns the underlying paid out for redeeming shareAmount
func QuoteRedeem(m *chainstate.Market, shareAmount uint64) (uint64, error) {
	return shares.AssetsDue(shareAmount, m.CirculatingLst, m.TotalDeposits)
}

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
	"context"
	"fmt"

	"github.com/blinklabs-io/lendcalc/internal/accrual"
	"github.com/blinklabs-io/lendcalc/internal/chainstate"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/health"
	"github.com/blinklabs-io/lendcalc/internal/marketplace"
	"github.com/blinklabs-io/lendcalc/internal/ratemodel"
	"github.com/blinklabs-io/lendcalc/internal/shares"
)

// Account is a user's state in one market
type Account struct {
	Address    string                     `yaml:"address"    json:"address"`
	LstBalance uint64                     `yaml:"lstBalance" json:"lstBalance"`
	Deposits   []chainstate.DepositRecord `yaml:"deposits"   json:"deposits"`
	Loan       *chainstate.LoanRecord     `yaml:"loan"       json:"loan,omitempty"`
}

// UserPosition is the user-level view of an account
type UserPosition struct {
	Address         string               `json:"address"`
	MarketAppId     uint64               `json:"marketAppId"`
	LstBalance      uint64               `json:"lstBalance"`
	Supplied        uint64               `json:"supplied"`
	Deposits        []common.AssetAmount `json:"deposits"`
	Collateral      common.AssetAmount   `json:"collateral"`
	Principal       uint64               `json:"principal"`
	LiveDebt        uint64               `json:"liveDebt"`
	AccruedInterest uint64               `json:"accruedInterest"`
	ProjectedDebt   uint64               `json:"projectedDebt"`
	Health          *health.Position     `json:"health"`
}

// checkLoan rejects a loan that cannot belong to the market snapshot
func checkLoan(snap *Snapshot, loan *chainstate.LoanRecord) error {
	if loan.BorrowedId != snap.State.BaseAssetId {
		return fmt.Errorf(
			"loan borrows asset %s but market %d lends %s: %w",
			loan.BorrowedId,
			snap.Config.AppId,
			snap.State.BaseAssetId,
			common.ErrInconsistentSnapshot,
		)
	}
	return nil
}

// Position evaluates an account against a market snapshot
func (s *Service) Position(
	ctx context.Context,
	snap *Snapshot,
	acct *Account,
) (*UserPosition, error) {
	m := snap.State
	supplied, err := shares.AssetsDue(acct.LstBalance, m.CirculatingLst, m.TotalDeposits)
	if err != nil {
		return nil, err
	}
	ret := &UserPosition{
		Address:     acct.Address,
		MarketAppId: snap.Config.AppId,
		LstBalance:  acct.LstBalance,
		Supplied:    supplied,
		Deposits:    make([]common.AssetAmount, 0, len(acct.Deposits)),
	}
	for i := range acct.Deposits {
		ret.Deposits = append(ret.Deposits, acct.Deposits[i].AssetAmount())
	}

	loan := acct.Loan
	if loan == nil {
		// No loan means no debt and no posted collateral
		loan = &chainstate.LoanRecord{BorrowedId: m.BaseAssetId}
	}
	if err := checkLoan(snap, loan); err != nil {
		return nil, err
	}
	ret.Collateral = loan.Collateral()
	ret.Principal = loan.Principal
	snapshot := loan.Snapshot(m.BorrowIndexWad)
	if ret.LiveDebt, err = snapshot.LiveDebt(); err != nil {
		return nil, err
	}
	if ret.AccruedInterest, err = snapshot.AccruedInterest(); err != nil {
		return nil, err
	}
	rates, err := ratemodel.ComputeRates(
		m.TotalDeposits,
		m.TotalBorrows,
		m.ProtocolShareBps,
		m.RateModel,
	)
	if err != nil {
		return nil, err
	}
	projectedIndex, err := s.projectIndex(m, rates.BorrowAprBps)
	if err != nil {
		return nil, err
	}
	if ret.ProjectedDebt, err = accrual.LiveDebt(loan.Principal, loan.IndexSnapshotWad, projectedIndex); err != nil {
		return nil, err
	}

	_, pos, err := s.evaluate(ctx, snap, loan, ret.LiveDebt)
	if err != nil {
		return nil, err
	}
	ret.Health = pos
	return ret, nil
}

// evaluate values a loan against the market and returns the health input
// it was evaluated from
func (s *Service) evaluate(
	ctx context.Context,
	snap *Snapshot,
	loan *chainstate.LoanRecord,
	liveDebt uint64,
) (health.Input, *health.Position, error) {
	m := snap.State
	in, err := s.healthInput(ctx, snap, loan, liveDebt)
	if err != nil {
		return health.Input{}, nil, err
	}
	in.AvailableLiquidity = ratemodel.AvailableLiquidity(m.TotalDeposits, m.TotalBorrows)
	pos, err := health.Evaluate(
		in,
		health.Options{ZeroMissingCollateralPrice: s.policy.ZeroMissingCollateralPrice},
	)
	if err != nil {
		return health.Input{}, nil, err
	}
	return in, pos, nil
}

func (s *Service) healthInput(
	ctx context.Context,
	snap *Snapshot,
	loan *chainstate.LoanRecord,
	liveDebt uint64,
) (health.Input, error) {
	m := snap.State
	debtDecimals, err := s.decimals(m.BaseAssetId)
	if err != nil {
		return health.Input{}, err
	}
	debtPrice, err := s.price(ctx, snap, m.BaseAssetId, false)
	if err != nil {
		return health.Input{}, err
	}
	in := health.Input{
		CollateralAmount:        loan.CollateralAmount,
		DebtAmount:              liveDebt,
		DebtDecimals:            debtDecimals,
		DebtPrice:               debtPrice,
		LtvBps:                  m.LtvBps,
		LiquidationThresholdBps: m.LiquidationThresholdBps,
	}
	if loan.CollateralAmount > 0 {
		if in.CollateralDecimals, err = s.decimals(loan.CollateralId); err != nil {
			return health.Input{}, err
		}
		if in.CollateralPrice, err = s.price(ctx, snap, loan.CollateralId, true); err != nil {
			return health.Input{}, err
		}
	}
	return in, nil
}

// ListingKind is the way a listed debt position can be taken over
type ListingKind int

const (
	ListingKindNone ListingKind = iota
	ListingKindLiquidation
	ListingKindBuyout
)

func (k ListingKind) String() string {
	switch k {
	case ListingKindNone:
		return "none"
	case ListingKindLiquidation:
		return "liquidation"
	case ListingKindBuyout:
		return "buyout"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler
func (k ListingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Listing is a debt position as offered on the debt marketplace. Payments
// above the quoted repay cap or premium are refunded at settlement.
type Listing struct {
	Address     string                        `json:"address"`
	MarketAppId uint64                        `json:"marketAppId"`
	LiveDebt    uint64                        `json:"liveDebt"`
	Collateral  common.AssetAmount            `json:"collateral"`
	Health      *health.Position              `json:"health"`
	Kind        ListingKind                   `json:"kind"`
	Liquidation *marketplace.LiquidationQuote `json:"liquidation,omitempty"`
	Buyout      *marketplace.BuyoutQuote      `json:"buyout,omitempty"`
}

// Listing quotes a loan for the debt marketplace. Liquidatable positions get
// a liquidation quote, healthy ones a buyout quote, and positions without
// debt get neither.
func (s *Service) Listing(
	ctx context.Context,
	snap *Snapshot,
	address string,
	loan *chainstate.LoanRecord,
) (*Listing, error) {
	m := snap.State
	if err := checkLoan(snap, loan); err != nil {
		return nil, err
	}
	liveDebt, err := loan.Snapshot(m.BorrowIndexWad).LiveDebt()
	if err != nil {
		return nil, err
	}
	in, pos, err := s.evaluate(ctx, snap, loan, liveDebt)
	if err != nil {
		return nil, err
	}
	ret := &Listing{
		Address:     address,
		MarketAppId: snap.Config.AppId,
		LiveDebt:    liveDebt,
		Collateral:  loan.Collateral(),
		Health:      pos,
	}
	switch {
	case !pos.HasDebt():
		ret.Kind = ListingKindNone
	case pos.IsLiquidatable:
		quote, err := marketplace.QuoteLiquidation(
			pos,
			marketplace.LiquidationInput{
				LiveDebt:           liveDebt,
				DebtDecimals:       in.DebtDecimals,
				DebtPrice:          in.DebtPrice,
				CollateralAmount:   in.CollateralAmount,
				CollateralDecimals: in.CollateralDecimals,
				CollateralPrice:    in.CollateralPrice,
				BonusBps:           snap.bonusBps(),
				CloseFactorBps:     s.policy.CloseFactorBps,
			},
		)
		if err != nil {
			return nil, err
		}
		ret.Kind = ListingKindLiquidation
		ret.Liquidation = quote
	default:
		quote, err := marketplace.QuoteBuyout(
			pos,
			marketplace.BuyoutInput{
				LiveDebt:     liveDebt,
				DebtDecimals: in.DebtDecimals,
				DebtPrice:    in.DebtPrice,
			},
			s.policy.Premium,
		)
		if err != nil {
			return nil, err
		}
		ret.Kind = ListingKindBuyout
		ret.Buyout = quote
	}
	s.logger.Debug(
		"quoted debt listing",
		"market", snap.Config.AppId,
		"address", address,
		"kind", ret.Kind.String(),
	)
	return ret, nil
}

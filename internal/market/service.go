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

// Package market composes the lending math into the views a client needs:
// market summaries, user positions and debt marketplace listings.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/lendcalc/internal/chainstate"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/blinklabs-io/lendcalc/internal/logging"
	"github.com/blinklabs-io/lendcalc/internal/marketplace"
	"github.com/blinklabs-io/lendcalc/internal/pricefeed"
	"github.com/shopspring/decimal"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Policy holds the protocol-policy inputs the engine does not derive
type Policy struct {
	CloseFactorBps             uint64
	Premium                    marketplace.PremiumPolicy
	CompoundingPeriodsPerYear  uint64
	ZeroMissingCollateralPrice bool
}

// PolicyFromConfig maps the policy config section
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	return Policy{
		CloseFactorBps: cfg.CloseFactorBps,
		Premium: marketplace.PremiumPolicy{
			SlopeBps:      cfg.BuyoutPremiumSlopeBps,
			MaxPremiumBps: cfg.BuyoutMaxPremiumBps,
			BufferBps:     cfg.BuyoutBufferBps,
		},
		CompoundingPeriodsPerYear:  cfg.CompoundingPeriodsPerYear,
		ZeroMissingCollateralPrice: cfg.ZeroMissingCollateralPrice,
	}
}

// Snapshot is the state of one market and its accounts read at a single
// height, together with the discovery entry that names it
type Snapshot struct {
	Config   config.MarketConfig
	State    *chainstate.Market
	Accounts []*Account
	// Err is set when the market state could not be read. The market is
	// then reported as unavailable instead of being evaluated.
	Err error
	// Accounts whose records could not be read
	AccountErrors []AccountError
}

// AccountError is an account that could not be read from a snapshot
type AccountError struct {
	Address string
	Err     error
}

func (s *Snapshot) bonusBps() uint64 {
	if s.Config.LiquidationBonusBps > 0 {
		return s.Config.LiquidationBonusBps
	}
	return s.State.LiquidationBonusBps
}

// Service evaluates market snapshots
type Service struct {
	prices pricefeed.Reader
	assets map[common.AssetId]config.AssetConfig
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service pricing assets through prices
func NewService(
	prices pricefeed.Reader,
	assets []config.AssetConfig,
	policy Policy,
) *Service {
	s := &Service{
		prices: prices,
		assets: make(map[common.AssetId]config.AssetConfig, len(assets)),
		policy: policy,
		logger: logging.GetLogger().With("component", "market"),
		now:    time.Now,
	}
	for _, asset := range assets {
		s.assets[common.AssetId(asset.Id)] = asset
	}
	return s
}

func (s *Service) decimals(asset common.AssetId) (uint8, error) {
	info, ok := s.assets[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return info.Decimals, nil
}

// price returns the oracle price of an asset. A missing collateral price is
// reported as zero so health evaluation can apply its policy.
func (s *Service) price(
	ctx context.Context,
	snap *Snapshot,
	asset common.AssetId,
	collateral bool,
) (decimal.Decimal, error) {
	price, err := s.prices.Price(ctx, snap.State.OracleAppId, asset)
	if err != nil {
		if collateral && errors.Is(err, common.ErrPriceUnavailable) {
			s.logger.Warn(
				"collateral price unavailable",
				"market", snap.Config.AppId,
				"asset", asset.String(),
				"error", err,
			)
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return price, nil
}

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

// Package pricefeed supplies USD prices to the engine. Prices come from
// persisted oracle observations or from static configuration.
package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/shopspring/decimal"
)

// Reader resolves the USD price of an asset as reported by a market's oracle
type Reader interface {
	Price(ctx context.Context, oracleAppId uint64, asset common.AssetId) (decimal.Decimal, error)
}

// StaticReader serves fixed prices regardless of oracle
type StaticReader struct {
	prices map[common.AssetId]decimal.Decimal
}

// NewStaticReader returns a StaticReader over the given prices
func NewStaticReader(prices map[common.AssetId]decimal.Decimal) *StaticReader {
	ret := &StaticReader{
		prices: make(map[common.AssetId]decimal.Decimal, len(prices)),
	}
	for k, v := range prices {
		ret.prices[k] = v
	}
	return ret
}

// NewStaticReaderFromConfig builds a StaticReader from the configured assets
// that carry a price
func NewStaticReaderFromConfig(assets []config.AssetConfig) (*StaticReader, error) {
	prices := make(map[common.AssetId]decimal.Decimal)
	for _, asset := range assets {
		if asset.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(asset.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price for asset %d: %w", asset.Id, err)
		}
		prices[common.AssetId(asset.Id)] = price
	}
	return NewStaticReader(prices), nil
}

func (r *StaticReader) Price(
	ctx context.Context,
	oracleAppId uint64,
	asset common.AssetId,
) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	price, ok := r.prices[asset]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf(
			"no static price for asset %s: %w",
			asset,
			common.ErrPriceUnavailable,
		)
	}
	return price, nil
}

// ChainReader tries each reader in turn and returns the first available
// price. Errors other than an unavailable price stop the search.
type ChainReader []Reader

func (c ChainReader) Price(
	ctx context.Context,
	oracleAppId uint64,
	asset common.AssetId,
) (decimal.Decimal, error) {
	var lastErr error
	for _, r := range c {
		price, err := r.Price(ctx, oracleAppId, asset)
		if err == nil {
			return price, nil
		}
		if !errors.Is(err, common.ErrPriceUnavailable) {
			return decimal.Zero, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no price readers: %w", common.ErrPriceUnavailable)
	}
	return decimal.Zero, lastErr
}

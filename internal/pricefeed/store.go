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

package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/fixedpoint"
	"github.com/blinklabs-io/lendcalc/internal/logging"
	"github.com/blinklabs-io/lendcalc/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	priceKeyPrefix = "price_"

	// Digits kept when dividing an oracle price by its denominator
	priceDivisionPrecision = 18
)

// OracleDatum is a price published by an oracle
// Constructor 0 with fields: assetId, price, denominator, validFrom, validTo
type OracleDatum struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	AssetId     common.AssetId
	Price       uint64
	Denominator uint64
	ValidFrom   int64 // POSIX timestamp (ms)
	ValidTo     int64 // POSIX timestamp (ms)
}

func (d *OracleDatum) UnmarshalCBOR(cborData []byte) error {
	d.SetCbor(cborData)
	var tmpConstr cbor.Constructor
	if _, err := cbor.Decode(cborData, &tmpConstr); err != nil {
		return err
	}
	if tmpConstr.Constructor() != 0 {
		return fmt.Errorf(
			"expected oracle datum constructor 0, got %d",
			tmpConstr.Constructor(),
		)
	}
	return cbor.DecodeGeneric(tmpConstr.FieldsCbor(), d)
}

// UsdPrice returns Price/Denominator
func (d *OracleDatum) UsdPrice() (decimal.Decimal, error) {
	if d.Denominator == 0 {
		return decimal.Zero, fmt.Errorf(
			"oracle denominator for asset %s: %w",
			d.AssetId,
			common.ErrDivisionByZero,
		)
	}
	return fixedpoint.ToDecimal(d.Price, 0).DivRound(
		fixedpoint.ToDecimal(d.Denominator, 0),
		priceDivisionPrecision,
	), nil
}

func (d *OracleDatum) validFrom() time.Time {
	return time.UnixMilli(d.ValidFrom)
}

func (d *OracleDatum) validTo() time.Time {
	return time.UnixMilli(d.ValidTo)
}

// Observation is a stored oracle price
type Observation struct {
	OracleAppId uint64          `json:"oracleAppId"`
	AssetId     common.AssetId  `json:"assetId"`
	Price       decimal.Decimal `json:"price"`
	ValidFrom   time.Time       `json:"validFrom"`
	ValidTo     time.Time       `json:"validTo"`
}

// Store persists oracle datums and serves them as prices
type Store struct {
	storage *storage.Storage
	logger  *slog.Logger
	maxAge  time.Duration
	now     func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithMaxAge rejects observations older than d, measured from the start of
// their validity window. Zero relies on the validity window alone.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a Store backed by s
func NewStore(s *storage.Storage, opts ...StoreOption) *Store {
	ret := &Store{
		storage: s,
		logger:  logging.GetLogger().With("component", "pricefeed"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func priceKey(oracleAppId uint64, asset common.AssetId) string {
	return fmt.Sprintf("%s%d_%d", priceKeyPrefix, oracleAppId, uint64(asset))
}

// Put decodes an oracle datum and stores it as the latest observation for
// its asset. An observation older than the stored one is ignored.
func (s *Store) Put(oracleAppId uint64, datumCbor []byte) error {
	var datum OracleDatum
	if _, err := cbor.Decode(datumCbor, &datum); err != nil {
		return fmt.Errorf("failed to decode oracle datum: %w", err)
	}
	if datum.ValidTo < datum.ValidFrom {
		return fmt.Errorf(
			"oracle datum for asset %s has inverted validity window",
			datum.AssetId,
		)
	}
	key := priceKey(oracleAppId, datum.AssetId)
	existing, err := s.load(key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if existing != nil && existing.ValidFrom > datum.ValidFrom {
		s.logger.Debug(
			"ignoring older oracle datum",
			"oracleAppId", oracleAppId,
			"assetId", datum.AssetId.String(),
		)
		return nil
	}
	if err := s.storage.Set(key, datumCbor); err != nil {
		return fmt.Errorf("failed to save oracle datum: %w", err)
	}
	s.logger.Debug(
		"stored oracle datum",
		"oracleAppId", oracleAppId,
		"assetId", datum.AssetId.String(),
		"price", datum.Price,
		"denominator", datum.Denominator,
	)
	return nil
}

func (s *Store) load(key string) (*OracleDatum, error) {
	data, err := s.storage.Get(key)
	if err != nil {
		return nil, err
	}
	var datum OracleDatum
	if _, err := cbor.Decode(data, &datum); err != nil {
		return nil, fmt.Errorf("failed to decode stored oracle datum %s: %w", key, err)
	}
	return &datum, nil
}

// Price returns the stored price if it is inside its validity window and
// not older than the configured max age
func (s *Store) Price(
	ctx context.Context,
	oracleAppId uint64,
	asset common.AssetId,
) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	datum, err := s.load(priceKey(oracleAppId, asset))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, fmt.Errorf(
				"no oracle %d observation for asset %s: %w",
				oracleAppId,
				asset,
				common.ErrPriceUnavailable,
			)
		}
		return decimal.Zero, err
	}
	now := s.now()
	if now.Before(datum.validFrom()) || now.After(datum.validTo()) {
		return decimal.Zero, fmt.Errorf(
			"oracle %d price for asset %s outside validity window: %w",
			oracleAppId,
			asset,
			common.ErrPriceUnavailable,
		)
	}
	if s.maxAge > 0 && now.Sub(datum.validFrom()) > s.maxAge {
		return decimal.Zero, fmt.Errorf(
			"oracle %d price for asset %s is stale: %w",
			oracleAppId,
			asset,
			common.ErrPriceUnavailable,
		)
	}
	if datum.Price == 0 || datum.Denominator == 0 {
		return decimal.Zero, fmt.Errorf(
			"oracle %d price for asset %s is zero: %w",
			oracleAppId,
			asset,
			common.ErrPriceUnavailable,
		)
	}
	return datum.UsdPrice()
}

// Observations returns every stored observation, without applying the
// validity checks
func (s *Store) Observations() ([]Observation, error) {
	var ret []Observation
	err := s.storage.Iterate(priceKeyPrefix, func(key string, val []byte) error {
		var oracleAppId, assetId uint64
		if _, err := fmt.Sscanf(key, priceKeyPrefix+"%d_%d", &oracleAppId, &assetId); err != nil {
			s.logger.Warn("skipping malformed price key", "key", key)
			return nil
		}
		var datum OracleDatum
		if _, err := cbor.Decode(val, &datum); err != nil {
			s.logger.Warn(
				"failed to decode stored oracle datum",
				"key", key,
				"error", err,
			)
			return nil
		}
		price := decimal.Zero
		if datum.Denominator > 0 {
			price, _ = datum.UsdPrice()
		}
		ret = append(ret, Observation{
			OracleAppId: oracleAppId,
			AssetId:     common.AssetId(assetId),
			Price:       price,
			ValidFrom:   datum.validFrom().UTC(),
			ValidTo:     datum.validTo().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load oracle observations: %w", err)
	}
	return ret, nil
}

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

package pricefeed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/blinklabs-io/lendcalc/internal/pricefeed"
	"github.com/blinklabs-io/lendcalc/internal/storage"
	"github.com/shopspring/decimal"
)

const testOracleAppId = 77

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func encodeDatum(
	t *testing.T,
	asset uint64,
	price uint64,
	denominator uint64,
	validFrom time.Time,
	validTo time.Time,
) []byte {
	t.Helper()
	datum := cbor.NewConstructor(0, cbor.IndefLengthList{
		asset,
		price,
		denominator,
		validFrom.UnixMilli(),
		validTo.UnixMilli(),
	})
	cborData, err := cbor.Encode(&datum)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	return cborData
}

func newTestStore(t *testing.T, opts ...pricefeed.StoreOption) *pricefeed.Store {
	t.Helper()
	s, err := storage.Open("")
	if err != nil {
		t.Fatalf("failed to open storage: %s", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	opts = append(
		[]pricefeed.StoreOption{
			pricefeed.WithClock(func() time.Time { return testNow }),
		},
		opts...,
	)
	return pricefeed.NewStore(s, opts...)
}

func TestStorePrice(t *testing.T) {
	store := newTestStore(t)
	datum := encodeDatum(
		t,
		0,
		2_500_000,
		10_000_000,
		testNow.Add(-time.Minute),
		testNow.Add(time.Minute),
	)
	if err := store.Put(testOracleAppId, datum); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	price, err := store.Price(context.Background(), testOracleAppId, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !price.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("expected price 0.25, got %s", price.String())
	}
}

func TestStorePriceUnavailable(t *testing.T) {
	testDefs := []struct {
		name   string
		datum  func(t *testing.T) []byte
		maxAge time.Duration
	}{
		{
			name: "expired",
			datum: func(t *testing.T) []byte {
				return encodeDatum(t, 0, 1, 1, testNow.Add(-time.Hour), testNow.Add(-time.Minute))
			},
		},
		{
			name: "not yet valid",
			datum: func(t *testing.T) []byte {
				return encodeDatum(t, 0, 1, 1, testNow.Add(time.Minute), testNow.Add(time.Hour))
			},
		},
		{
			name: "stale",
			datum: func(t *testing.T) []byte {
				return encodeDatum(t, 0, 1, 1, testNow.Add(-2*time.Hour), testNow.Add(time.Hour))
			},
			maxAge: time.Hour,
		},
		{
			name: "zero price",
			datum: func(t *testing.T) []byte {
				return encodeDatum(t, 0, 0, 1, testNow.Add(-time.Minute), testNow.Add(time.Minute))
			},
		},
		{
			name: "zero denominator",
			datum: func(t *testing.T) []byte {
				return encodeDatum(t, 0, 1, 0, testNow.Add(-time.Minute), testNow.Add(time.Minute))
			},
		},
	}
	for _, testDef := range testDefs {
		store := newTestStore(t, pricefeed.WithMaxAge(testDef.maxAge))
		if err := store.Put(testOracleAppId, testDef.datum(t)); err != nil {
			t.Fatalf("%s: unexpected error: %s", testDef.name, err)
		}
		_, err := store.Price(context.Background(), testOracleAppId, 0)
		if !errors.Is(err, common.ErrPriceUnavailable) {
			t.Errorf("%s: expected ErrPriceUnavailable, got %v", testDef.name, err)
		}
	}
	store := newTestStore(t)
	if _, err := store.Price(context.Background(), testOracleAppId, 0); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("missing: expected ErrPriceUnavailable, got %v", err)
	}
}

func TestStoreKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	newer := encodeDatum(t, 0, 30, 100, testNow.Add(-time.Minute), testNow.Add(time.Hour))
	older := encodeDatum(t, 0, 20, 100, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	for _, datum := range [][]byte{newer, older} {
		if err := store.Put(testOracleAppId, datum); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	price, err := store.Price(context.Background(), testOracleAppId, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !price.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("expected price 0.3, got %s", price.String())
	}
	obs, err := store.Observations()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(obs) != 1 || obs[0].OracleAppId != testOracleAppId {
		t.Errorf("expected one observation for oracle %d, got %+v", testOracleAppId, obs)
	}
}

func TestStorePutInvalid(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put(testOracleAppId, []byte{0xff}); err == nil {
		t.Error("expected error for undecodable datum")
	}
	inverted := encodeDatum(t, 0, 1, 1, testNow, testNow.Add(-time.Minute))
	if err := store.Put(testOracleAppId, inverted); err == nil {
		t.Error("expected error for inverted validity window")
	}
}

func TestStaticReader(t *testing.T) {
	reader, err := pricefeed.NewStaticReaderFromConfig([]config.AssetConfig{
		{Id: 31566704, Price: "1.0002"},
		{Id: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	price, err := reader.Price(context.Background(), testOracleAppId, 31566704)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !price.Equal(decimal.RequireFromString("1.0002")) {
		t.Errorf("expected price 1.0002, got %s", price.String())
	}
	if _, err := reader.Price(context.Background(), testOracleAppId, 0); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
	if _, err := pricefeed.NewStaticReaderFromConfig([]config.AssetConfig{{Id: 1, Price: "abc"}}); err == nil {
		t.Error("expected error for invalid price")
	}
}

func TestChainReader(t *testing.T) {
	store := newTestStore(t)
	static := pricefeed.NewStaticReader(map[common.AssetId]decimal.Decimal{
		0: decimal.RequireFromString("0.2"),
	})
	chain := pricefeed.ChainReader{store, static}
	price, err := chain.Price(context.Background(), testOracleAppId, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !price.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("expected fallback price 0.2, got %s", price.String())
	}
	datum := encodeDatum(t, 0, 25, 100, testNow.Add(-time.Minute), testNow.Add(time.Minute))
	if err := store.Put(testOracleAppId, datum); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	price, err = chain.Price(context.Background(), testOracleAppId, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !price.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("expected oracle price 0.25, got %s", price.String())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Price(ctx, testOracleAppId, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := (pricefeed.ChainReader{}).Price(context.Background(), 1, 0); !errors.Is(err, common.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable from empty chain, got %v", err)
	}
}

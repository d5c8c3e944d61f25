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

// Package snapshot loads market state captured by a chain reader from a
// YAML file. Values may be given as plain fields or as hex-encoded CBOR.
package snapshot

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/blinklabs-io/lendcalc/internal/chainstate"
	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/blinklabs-io/lendcalc/internal/market"
	"gopkg.in/yaml.v2"
)

// File is the on-disk snapshot format
type File struct {
	Markets []MarketEntry `yaml:"markets"`
	Prices  []PriceEntry  `yaml:"prices"`
}

type MarketEntry struct {
	AppId uint64 `yaml:"appId"`
	// Global state by key. Integers are uint values, strings are byte values.
	State map[string]any `yaml:"state"`
	// Hex-encoded CBOR list of state entries, merged over State
	StateCbor string         `yaml:"stateCbor"`
	Accounts  []AccountEntry `yaml:"accounts"`
}

type AccountEntry struct {
	market.Account `yaml:",inline"`
	// Hex-encoded CBOR records, used in place of the plain fields
	LoanCbor     string   `yaml:"loanCbor"`
	DepositsCbor []string `yaml:"depositsCbor"`
}

// PriceEntry is an oracle datum observed alongside the market state
type PriceEntry struct {
	OracleAppId uint64 `yaml:"oracleAppId"`
	DatumCbor   string `yaml:"datumCbor"`
}

// Datum returns the decoded datum bytes
func (p PriceEntry) Datum() ([]byte, error) {
	return hex.DecodeString(p.DatumCbor)
}

// Load reads a snapshot file
func Load(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading snapshot file: %w", err)
	}
	return Parse(buf)
}

// Parse decodes a snapshot file's contents
func Parse(data []byte) (*File, error) {
	var ret File
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("error parsing snapshot file: %w", err)
	}
	return &ret, nil
}

// Snapshots decodes every market in the file. A market that is missing from
// the discovery list or whose state cannot be decoded is returned with Err
// set, and an account whose records cannot be decoded is listed in
// AccountErrors, so the remaining markets and accounts stay available.
func (f *File) Snapshots(markets []config.MarketConfig) []*market.Snapshot {
	byAppId := make(map[uint64]config.MarketConfig, len(markets))
	for _, m := range markets {
		byAppId[m.AppId] = m
	}
	ret := make([]*market.Snapshot, 0, len(f.Markets))
	for _, entry := range f.Markets {
		cfg, ok := byAppId[entry.AppId]
		if !ok {
			err := fmt.Errorf(
				"market %d is not in the market list: %w",
				entry.AppId,
				common.ErrInconsistentSnapshot,
			)
			ret = append(ret, &market.Snapshot{
				Config: config.MarketConfig{AppId: entry.AppId},
				Err:    err,
			})
			continue
		}
		ret = append(ret, entry.snapshot(cfg))
	}
	return ret
}

func (e *MarketEntry) snapshot(cfg config.MarketConfig) *market.Snapshot {
	ret := &market.Snapshot{Config: cfg}
	raw, err := e.rawState()
	if err != nil {
		ret.Err = err
		return ret
	}
	state, err := chainstate.DecodeMarket(raw)
	if err != nil {
		ret.Err = err
		return ret
	}
	if uint64(state.BaseAssetId) != cfg.BaseAssetId || uint64(state.LstAssetId) != cfg.LstAssetId {
		ret.Err = fmt.Errorf(
			"state assets %s/%s differ from market list %d/%d: %w",
			state.BaseAssetId,
			state.LstAssetId,
			cfg.BaseAssetId,
			cfg.LstAssetId,
			common.ErrInconsistentSnapshot,
		)
		return ret
	}
	ret.State = state
	ret.Accounts = make([]*market.Account, 0, len(e.Accounts))
	for i := range e.Accounts {
		acct, err := e.Accounts[i].account()
		if err != nil {
			ret.AccountErrors = append(ret.AccountErrors, market.AccountError{
				Address: e.Accounts[i].Address,
				Err:     err,
			})
			continue
		}
		ret.Accounts = append(ret.Accounts, acct)
	}
	return ret
}

func (e *MarketEntry) rawState() (chainstate.RawState, error) {
	ret := make(chainstate.RawState, len(e.State))
	for key, val := range e.State {
		v, err := toValue(val)
		if err != nil {
			return nil, fmt.Errorf("state key %q: %w", key, err)
		}
		ret[key] = v
	}
	if e.StateCbor != "" {
		data, err := hex.DecodeString(e.StateCbor)
		if err != nil {
			return nil, fmt.Errorf("invalid state CBOR hex: %w", err)
		}
		decoded, err := chainstate.DecodeState(data)
		if err != nil {
			return nil, err
		}
		for key, v := range decoded {
			ret[key] = v
		}
	}
	return ret, nil
}

func toValue(val any) (chainstate.Value, error) {
	switch v := val.(type) {
	case int:
		if v < 0 {
			return chainstate.Value{}, fmt.Errorf("negative value %d", v)
		}
		return chainstate.UintValue(uint64(v)), nil
	case int64:
		if v < 0 {
			return chainstate.Value{}, fmt.Errorf("negative value %d", v)
		}
		return chainstate.UintValue(uint64(v)), nil
	case uint64:
		return chainstate.UintValue(v), nil
	case string:
		return chainstate.BytesValue([]byte(v)), nil
	default:
		return chainstate.Value{}, fmt.Errorf("unsupported value type %T", val)
	}
}

func (a *AccountEntry) account() (*market.Account, error) {
	ret := a.Account
	ret.Deposits = append([]chainstate.DepositRecord(nil), a.Deposits...)
	if a.LoanCbor != "" {
		data, err := hex.DecodeString(a.LoanCbor)
		if err != nil {
			return nil, fmt.Errorf("invalid loan CBOR hex: %w", err)
		}
		loan, err := chainstate.DecodeLoanRecord(data)
		if err != nil {
			return nil, err
		}
		ret.Loan = loan
	}
	for _, depositHex := range a.DepositsCbor {
		data, err := hex.DecodeString(depositHex)
		if err != nil {
			return nil, fmt.Errorf("invalid deposit CBOR hex: %w", err)
		}
		deposit, err := chainstate.DecodeDepositRecord(data)
		if err != nil {
			return nil, err
		}
		ret.Deposits = append(ret.Deposits, *deposit)
	}
	return &ret, nil
}

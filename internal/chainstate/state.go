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

// Package chainstate decodes the raw global and per-user state of a lending
// market into typed records. The reader that fetches this state lives
// outside the engine; only its output format is handled here.
package chainstate

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/ratemodel"
)

// Global state keys
const (
	KeyTotalDeposits    = "total_deposits"
	KeyTotalBorrows     = "total_borrows"
	KeyCirculatingLst   = "circulating_lst"
	KeyBorrowIndexWad   = "borrow_index_wad"
	KeyBaseBps          = "base_bps"
	KeyUtilCapBps       = "util_cap_bps"
	KeyKinkNormBps      = "kink_norm_bps"
	KeySlope1Bps        = "slope1_bps"
	KeySlope2Bps        = "slope2_bps"
	KeyMaxAprBps        = "max_apr_bps"
	KeyRateModelType    = "rate_model_type"
	KeyProtocolShareBps = "protocol_share_bps"
	KeyContractState    = "contract_state"
	KeyBaseTokenId      = "base_token_id"
	KeyLstTokenId       = "lst_token_id"
	KeyOracleAppId      = "oracle_app_id"
	KeyLtvBps           = "ltv_bps"
	KeyLiqThresholdBps  = "liq_threshold_bps"
	KeyLiqBonusBps      = "liq_bonus_bps"
	KeyLastUpdateTs     = "last_update_ts"
)

// ValueType is the type tag of a raw state value
type ValueType int

const (
	ValueTypeUint ValueType = iota
	ValueTypeBytes
)

// Value is a single raw state value
type Value struct {
	Type  ValueType `yaml:"type"  json:"type"`
	Uint  uint64    `yaml:"uint"  json:"uint,omitempty"`
	Bytes []byte    `yaml:"bytes" json:"bytes,omitempty"`
}

// UintValue returns a Value holding an integer
func UintValue(v uint64) Value {
	return Value{Type: ValueTypeUint, Uint: v}
}

// BytesValue returns a Value holding a byte string
func BytesValue(b []byte) Value {
	return Value{Type: ValueTypeBytes, Bytes: b}
}

// RawState is a market's global state as read from chain
type RawState map[string]Value

func (s RawState) uint(key string) (uint64, error) {
	v, ok := s[key]
	if !ok {
		return 0, fmt.Errorf(
			"missing state key %q: %w",
			key,
			common.ErrInconsistentSnapshot,
		)
	}
	if v.Type != ValueTypeUint {
		return 0, fmt.Errorf(
			"state key %q is not an integer: %w",
			key,
			common.ErrInconsistentSnapshot,
		)
	}
	return v.Uint, nil
}

// ContractState is the market contract's operating mode
type ContractState uint64

const (
	ContractStateActive ContractState = iota
	ContractStatePaused
	ContractStateMigrating
)

func (c ContractState) String() string {
	switch c {
	case ContractStateActive:
		return "active"
	case ContractStatePaused:
		return "paused"
	case ContractStateMigrating:
		return "migrating"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(c))
	}
}

// MarshalText implements encoding.TextMarshaler
func (c ContractState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Market is the typed global state of a lending market
type Market struct {
	TotalDeposits           uint64           `json:"totalDeposits"`
	TotalBorrows            uint64           `json:"totalBorrows"`
	CirculatingLst          uint64           `json:"circulatingLst"`
	BorrowIndexWad          uint64           `json:"borrowIndexWad"`
	RateModel               ratemodel.Params `json:"rateModel"`
	ProtocolShareBps        uint64           `json:"protocolShareBps"`
	ContractState           ContractState    `json:"contractState"`
	BaseAssetId             common.AssetId   `json:"baseAssetId"`
	LstAssetId              common.AssetId   `json:"lstAssetId"`
	OracleAppId             uint64           `json:"oracleAppId"`
	LtvBps                  uint64           `json:"ltvBps"`
	LiquidationThresholdBps uint64           `json:"liquidationThresholdBps"`
	LiquidationBonusBps     uint64           `json:"liquidationBonusBps"`
	LastUpdate              time.Time        `json:"lastUpdate"`
}

// DecodeMarket builds a Market from raw global state. Every key is
// required; the rate model parameters are validated.
func DecodeMarket(raw RawState) (*Market, error) {
	var m Market
	var modelType, contractState, baseToken, lstToken, lastUpdate uint64
	fields := []struct {
		key string
		dst *uint64
	}{
		{KeyTotalDeposits, &m.TotalDeposits},
		{KeyTotalBorrows, &m.TotalBorrows},
		{KeyCirculatingLst, &m.CirculatingLst},
		{KeyBorrowIndexWad, &m.BorrowIndexWad},
		{KeyBaseBps, &m.RateModel.BaseBps},
		{KeyUtilCapBps, &m.RateModel.UtilCapBps},
		{KeyKinkNormBps, &m.RateModel.KinkNormBps},
		{KeySlope1Bps, &m.RateModel.Slope1Bps},
		{KeySlope2Bps, &m.RateModel.Slope2Bps},
		{KeyMaxAprBps, &m.RateModel.MaxAprBps},
		{KeyRateModelType, &modelType},
		{KeyProtocolShareBps, &m.ProtocolShareBps},
		{KeyContractState, &contractState},
		{KeyBaseTokenId, &baseToken},
		{KeyLstTokenId, &lstToken},
		{KeyOracleAppId, &m.OracleAppId},
		{KeyLtvBps, &m.LtvBps},
		{KeyLiqThresholdBps, &m.LiquidationThresholdBps},
		{KeyLiqBonusBps, &m.LiquidationBonusBps},
		{KeyLastUpdateTs, &lastUpdate},
	}
	for _, f := range fields {
		v, err := raw.uint(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	if modelType > uint64(ratemodel.ModelTypeFixed) {
		return nil, fmt.Errorf(
			"rate model type %d: %w",
			modelType,
			common.ErrParameterOutOfRange,
		)
	}
	m.RateModel.ModelType = ratemodel.ModelType(modelType)
	m.ContractState = ContractState(contractState)
	m.BaseAssetId = common.AssetId(baseToken)
	m.LstAssetId = common.AssetId(lstToken)
	m.LastUpdate = time.Unix(int64(lastUpdate), 0).UTC()
	if err := m.RateModel.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsActive returns true if the market accepts new deposits and borrows
func (m *Market) IsActive() bool {
	return m.ContractState == ContractStateActive
}

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

package chainstate

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/lendcalc/internal/accrual"
	"github.com/blinklabs-io/lendcalc/internal/common"
)

// UnmarshalCBOR decodes a state value. Constructor 0 wraps an integer,
// constructor 1 wraps a byte string.
func (v *Value) UnmarshalCBOR(cborData []byte) error {
	var tmpConstr cbor.Constructor
	if _, err := cbor.Decode(cborData, &tmpConstr); err != nil {
		return err
	}
	switch tmpConstr.Constructor() {
	case 0:
		var tmp struct {
			cbor.StructAsArray
			Value uint64
		}
		if _, err := cbor.Decode(tmpConstr.FieldsCbor(), &tmp); err != nil {
			return err
		}
		*v = UintValue(tmp.Value)
	case 1:
		var tmp struct {
			cbor.StructAsArray
			Value []byte
		}
		if _, err := cbor.Decode(tmpConstr.FieldsCbor(), &tmp); err != nil {
			return err
		}
		*v = BytesValue(tmp.Value)
	default:
		return fmt.Errorf(
			"unknown state value constructor %d",
			tmpConstr.Constructor(),
		)
	}
	return nil
}

// StateEntry is a single key/value pair of global state
// Constructor 0 with fields: key, value
type StateEntry struct {
	cbor.StructAsArray
	Key   []byte
	Value Value
}

func (e *StateEntry) UnmarshalCBOR(cborData []byte) error {
	var tmpConstr cbor.Constructor
	if _, err := cbor.Decode(cborData, &tmpConstr); err != nil {
		return err
	}
	if tmpConstr.Constructor() != 0 {
		return fmt.Errorf(
			"expected state entry constructor 0, got %d",
			tmpConstr.Constructor(),
		)
	}
	return cbor.DecodeGeneric(tmpConstr.FieldsCbor(), e)
}

// DecodeState decodes a CBOR list of state entries
func DecodeState(cborData []byte) (RawState, error) {
	var entries []StateEntry
	if _, err := cbor.Decode(cborData, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode global state: %w", err)
	}
	ret := make(RawState, len(entries))
	for _, entry := range entries {
		key := string(entry.Key)
		if _, ok := ret[key]; ok {
			return nil, fmt.Errorf(
				"duplicate state key %q: %w",
				key,
				common.ErrInconsistentSnapshot,
			)
		}
		ret[key] = entry.Value
	}
	return ret, nil
}

// DepositRecord is a user's deposit into a market
// Constructor 0 with fields: assetId, amount
type DepositRecord struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	AssetId common.AssetId `yaml:"assetId" json:"assetId"`
	Amount  uint64         `yaml:"amount"  json:"amount"`
}

func (d *DepositRecord) UnmarshalCBOR(cborData []byte) error {
	d.SetCbor(cborData)
	var tmpConstr cbor.Constructor
	if _, err := cbor.Decode(cborData, &tmpConstr); err != nil {
		return err
	}
	if tmpConstr.Constructor() != 0 {
		return fmt.Errorf(
			"expected deposit record constructor 0, got %d",
			tmpConstr.Constructor(),
		)
	}
	return cbor.DecodeGeneric(tmpConstr.FieldsCbor(), d)
}

// AssetAmount returns the deposited amount with its asset
func (d *DepositRecord) AssetAmount() common.AssetAmount {
	return common.AssetAmount{Asset: d.AssetId, Amount: d.Amount}
}

// LoanRecord is a user's borrow position
// Constructor 0 with fields: collateralId, collateralAmount, borrowedId,
// principal, indexSnapshot, lastChange
type LoanRecord struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	CollateralId     common.AssetId `yaml:"collateralId"     json:"collateralId"`
	CollateralAmount uint64         `yaml:"collateralAmount" json:"collateralAmount"`
	BorrowedId       common.AssetId `yaml:"borrowedId"       json:"borrowedId"`
	Principal        uint64         `yaml:"principal"        json:"principal"`
	IndexSnapshotWad uint64         `yaml:"indexSnapshotWad" json:"indexSnapshotWad"`
	LastChange       uint64         `yaml:"lastChange"       json:"lastChange"` // Unix seconds
}

func (l *LoanRecord) UnmarshalCBOR(cborData []byte) error {
	l.SetCbor(cborData)
	var tmpConstr cbor.Constructor
	if _, err := cbor.Decode(cborData, &tmpConstr); err != nil {
		return err
	}
	if tmpConstr.Constructor() != 0 {
		return fmt.Errorf(
			"expected loan record constructor 0, got %d",
			tmpConstr.Constructor(),
		)
	}
	return cbor.DecodeGeneric(tmpConstr.FieldsCbor(), l)
}

// Collateral returns the posted collateral with its asset
func (l *LoanRecord) Collateral() common.AssetAmount {
	return common.AssetAmount{Asset: l.CollateralId, Amount: l.CollateralAmount}
}

// Snapshot pairs the loan with the market's current borrow index
func (l *LoanRecord) Snapshot(globalIndexWad uint64) accrual.Snapshot {
	return accrual.Snapshot{
		Principal:        l.Principal,
		SnapshotIndexWad: l.IndexSnapshotWad,
		GlobalIndexWad:   globalIndexWad,
	}
}

// LastChangeTime returns when the loan was last modified
func (l *LoanRecord) LastChangeTime() time.Time {
	return time.Unix(int64(l.LastChange), 0).UTC()
}

// DecodeDepositRecord decodes a CBOR deposit record
func DecodeDepositRecord(data []byte) (*DepositRecord, error) {
	var ret DepositRecord
	if _, err := cbor.Decode(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to decode deposit record: %w", err)
	}
	return &ret, nil
}

// DecodeLoanRecord decodes a CBOR loan record
func DecodeLoanRecord(data []byte) (*LoanRecord, error) {
	var ret LoanRecord
	if _, err := cbor.Decode(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to decode loan record: %w", err)
	}
	return &ret, nil
}

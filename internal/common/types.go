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

// Package common provides shared types used across multiple packages
package common

import (
	"fmt"
	"strconv"
)

// AssetId identifies an on-chain asset. Zero is the chain's native asset.
type AssetId uint64

// IsNative returns true if this is the chain's native asset
func (a AssetId) IsNative() bool {
	return a == 0
}

// String returns a human-readable representation of the AssetId
func (a AssetId) String() string {
	if a.IsNative() {
		return "native"
	}
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAssetId parses an asset ID from its decimal representation. The string
// "native" maps to the native asset.
func ParseAssetId(s string) (AssetId, error) {
	if s == "native" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid asset ID %q: %w", s, err)
	}
	return AssetId(v), nil
}

// AssetAmount represents an asset with an amount in micro units
type AssetAmount struct {
	Asset  AssetId `json:"asset"`
	Amount uint64  `json:"amount"`
}

// IsAsset checks if this amount is for the given asset
func (a AssetAmount) IsAsset(asset AssetId) bool {
	return a.Asset == asset
}

// IsNative returns true if this amount is of the native asset
func (a AssetAmount) IsNative() bool {
	return a.Asset.IsNative()
}

// String returns a human-readable representation
func (a AssetAmount) String() string {
	return fmt.Sprintf("%d %s", a.Amount, a.Asset)
}

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

package config

// Profile is a set of well-known assets on a network
type Profile struct {
	Name   string
	Assets []AssetConfig
}

// GetAssets returns the assets of the enabled profiles followed by the
// configured assets. A configured asset replaces a profile asset with the
// same ID.
func GetAssets() []AssetConfig {
	var ret []AssetConfig
	index := make(map[uint64]int)
	add := func(asset AssetConfig) {
		if idx, ok := index[asset.Id]; ok {
			ret[idx] = asset
			return
		}
		index[asset.Id] = len(ret)
		ret = append(ret, asset)
	}
	if networkProfiles, ok := Profiles[globalConfig.Network]; ok {
		for _, name := range globalConfig.Profiles {
			if profile, ok := networkProfiles[name]; ok {
				for _, asset := range profile.Assets {
					add(asset)
				}
			}
		}
	}
	for _, asset := range globalConfig.Assets {
		add(asset)
	}
	return ret
}

// GetAsset returns the asset with the given ID from GetAssets
func GetAsset(id uint64) (AssetConfig, bool) {
	for _, asset := range GetAssets() {
		if asset.Id == id {
			return asset, true
		}
	}
	return AssetConfig{}, false
}

func GetAvailableProfiles() []string {
	var ret []string
	if networkProfiles, ok := Profiles[globalConfig.Network]; ok {
		for k := range networkProfiles {
			ret = append(ret, k)
		}
	}
	return ret
}

var Profiles = map[string]map[string]Profile{
	"testnet": {
		"native": {
			Name: "Native asset",
			Assets: []AssetConfig{
				{Id: 0, Symbol: "ALGO", Decimals: 6},
			},
		},
		"stablecoins": {
			Name: "Stablecoins",
			Assets: []AssetConfig{
				{Id: 10458941, Symbol: "USDC", Decimals: 6},
			},
		},
	},
	"mainnet": {
		"native": {
			Name: "Native asset",
			Assets: []AssetConfig{
				{Id: 0, Symbol: "ALGO", Decimals: 6},
			},
		},
		"stablecoins": {
			Name: "Stablecoins",
			Assets: []AssetConfig{
				{Id: 31566704, Symbol: "USDC", Decimals: 6},
				{Id: 312769, Symbol: "USDt", Decimals: 6},
			},
		},
		"wrapped": {
			Name: "Wrapped assets",
			Assets: []AssetConfig{
				{Id: 386192725, Symbol: "goBTC", Decimals: 8},
				{Id: 386195940, Symbol: "goETH", Decimals: 8},
			},
		},
	},
	"localnet": {},
}

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

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const maxDecimals = 19

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Debug    DebugConfig    `yaml:"debug"`
	Api      ApiConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Policy   PolicyConfig   `yaml:"policy"`
	Network  string         `yaml:"network" envconfig:"NETWORK"`
	Assets   []AssetConfig  `yaml:"assets"`
	Markets  []MarketConfig `yaml:"markets"`
	Profiles []string       `yaml:"profiles" envconfig:"PROFILES"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type DebugConfig struct {
	ListenAddress string `yaml:"address" envconfig:"DEBUG_ADDRESS"`
	ListenPort    uint   `yaml:"port"    envconfig:"DEBUG_PORT"`
}

type ApiConfig struct {
	ListenAddress string `yaml:"address" envconfig:"API_ADDRESS"`
	ListenPort    uint   `yaml:"port"    envconfig:"API_PORT"`
}

type StorageConfig struct {
	// Directory for persisted oracle prices. Empty disables the price store.
	Directory string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

type PolicyConfig struct {
	CloseFactorBps             uint64 `yaml:"closeFactorBps"             envconfig:"CLOSE_FACTOR_BPS"`
	BuyoutPremiumSlopeBps      uint64 `yaml:"buyoutPremiumSlopeBps"      envconfig:"BUYOUT_PREMIUM_SLOPE_BPS"`
	BuyoutMaxPremiumBps        uint64 `yaml:"buyoutMaxPremiumBps"        envconfig:"BUYOUT_MAX_PREMIUM_BPS"`
	BuyoutBufferBps            uint64 `yaml:"buyoutBufferBps"            envconfig:"BUYOUT_BUFFER_BPS"`
	CompoundingPeriodsPerYear  uint64 `yaml:"compoundingPeriodsPerYear"  envconfig:"COMPOUNDING_PERIODS_PER_YEAR"`
	ZeroMissingCollateralPrice bool   `yaml:"zeroMissingCollateralPrice" envconfig:"ZERO_MISSING_COLLATERAL_PRICE"`
	MaxPriceAgeSeconds         uint64 `yaml:"maxPriceAgeSeconds"         envconfig:"MAX_PRICE_AGE_SECONDS"`
}

// AssetConfig describes an asset the engine may value
type AssetConfig struct {
	Id       uint64 `yaml:"id"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	// Static USD price, used when no oracle observation is stored
	Price string `yaml:"price"`
}

// MarketConfig is an entry of the market discovery list
type MarketConfig struct {
	Name        string `yaml:"name"`
	AppId       uint64 `yaml:"appId"`
	OracleAppId uint64 `yaml:"oracleAppId"`
	BaseAssetId uint64 `yaml:"baseAssetId"`
	LstAssetId  uint64 `yaml:"lstAssetId"`
	// Overrides the on-chain liquidation bonus when non-zero
	LiquidationBonusBps uint64 `yaml:"liquidationBonusBps"`
}

// Singleton config instance with default values
var globalConfig = &Config{
	Network:  "mainnet",
	Profiles: []string{"native", "stablecoins"},
	Logging: LoggingConfig{
		Level: "info",
	},
	Debug: DebugConfig{
		ListenAddress: "localhost",
		ListenPort:    0,
	},
	Api: ApiConfig{
		ListenAddress: "localhost",
		ListenPort:    8080,
	},
	Policy: PolicyConfig{
		CloseFactorBps:            5_000,
		BuyoutPremiumSlopeBps:     1_000,
		BuyoutMaxPremiumBps:       1_000,
		BuyoutBufferBps:           200,
		CompoundingPeriodsPerYear: 365,
		MaxPriceAgeSeconds:        3_600,
	},
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %s", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %s", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %s", err)
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// Validate checks policy ranges and the market and asset lists
func (cfg *Config) Validate() error {
	if _, ok := Profiles[cfg.Network]; !ok {
		return fmt.Errorf("%w: unknown network name: %s", ErrInvalidConfig, cfg.Network)
	}
	bpsFields := []struct {
		name  string
		value uint64
	}{
		{"closeFactorBps", cfg.Policy.CloseFactorBps},
		{"buyoutMaxPremiumBps", cfg.Policy.BuyoutMaxPremiumBps},
		{"buyoutBufferBps", cfg.Policy.BuyoutBufferBps},
	}
	for _, f := range bpsFields {
		if f.value > 10_000 {
			return fmt.Errorf(
				"%w: policy %s %d exceeds 10000",
				ErrInvalidConfig,
				f.name,
				f.value,
			)
		}
	}
	for _, asset := range cfg.Assets {
		if asset.Decimals > maxDecimals {
			return fmt.Errorf(
				"%w: asset %d has %d decimals",
				ErrInvalidConfig,
				asset.Id,
				asset.Decimals,
			)
		}
	}
	seen := make(map[uint64]bool)
	for _, market := range cfg.Markets {
		if market.AppId == 0 {
			return fmt.Errorf("%w: market %q has no app ID", ErrInvalidConfig, market.Name)
		}
		if seen[market.AppId] {
			return fmt.Errorf("%w: duplicate market app ID %d", ErrInvalidConfig, market.AppId)
		}
		seen[market.AppId] = true
		if market.LiquidationBonusBps > 10_000 {
			return fmt.Errorf(
				"%w: market %q liquidation bonus %d exceeds 10000",
				ErrInvalidConfig,
				market.Name,
				market.LiquidationBonusBps,
			)
		}
	}
	return nil
}

// GetMarket returns the configured market with the given app ID
func (cfg *Config) GetMarket(appId uint64) (MarketConfig, bool) {
	for _, market := range cfg.Markets {
		if market.AppId == appId {
			return market, true
		}
	}
	return MarketConfig{}, false
}

// Return global config instance
func GetConfig() *Config {
	return globalConfig
}

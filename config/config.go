package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config holds the stakepoold service configuration. The staking parameters
// are read once at first boot and are immutable afterwards; editing them has
// no effect on an already-initialized pool.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`

	OwnerAddress string `toml:"OwnerAddress"`
	PoolAddress  string `toml:"PoolAddress"`
	AssetAddress string `toml:"AssetAddress"`
	AssetSymbol  string `toml:"AssetSymbol"`

	MinimumStake         string `toml:"MinimumStake"`
	DailyYieldRateScaled string `toml:"DailyYieldRateScaled"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`

	Genesis []GenesisAlloc `toml:"Genesis"`
}

// GenesisAlloc seeds the in-process asset ledger at boot.
type GenesisAlloc struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Load reads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.AssetSymbol) == "" {
		cfg.AssetSymbol = "POOL"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 600
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
}

// Validate checks the addresses and staking parameters. The parameter rules
// mirror the ledger's initialization preconditions so a bad file fails at
// load rather than at first boot.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"OwnerAddress": c.OwnerAddress,
		"PoolAddress":  c.PoolAddress,
		"AssetAddress": c.AssetAddress,
	} {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s %q is not a valid address", name, value)
		}
		if common.HexToAddress(value) == (common.Address{}) {
			return fmt.Errorf("config: %s must not be the zero address", name)
		}
	}
	if _, err := c.MinimumStakeAmount(); err != nil {
		return err
	}
	if _, err := c.DailyYieldRate(); err != nil {
		return err
	}
	for i, alloc := range c.Genesis {
		if !common.IsHexAddress(alloc.Address) {
			return fmt.Errorf("config: genesis entry %d has invalid address %q", i, alloc.Address)
		}
		if _, err := parsePositive("Genesis.Balance", alloc.Balance); err != nil {
			return err
		}
	}
	return nil
}

// Owner returns the parsed owner identity.
func (c *Config) Owner() common.Address { return common.HexToAddress(c.OwnerAddress) }

// Pool returns the parsed pool custody address.
func (c *Config) Pool() common.Address { return common.HexToAddress(c.PoolAddress) }

// Asset returns the parsed staked-asset address.
func (c *Config) Asset() common.Address { return common.HexToAddress(c.AssetAddress) }

// MinimumStakeAmount returns the parsed minimum stake.
func (c *Config) MinimumStakeAmount() (*big.Int, error) {
	return parsePositive("MinimumStake", c.MinimumStake)
}

// DailyYieldRate returns the parsed scaled daily yield rate.
func (c *Config) DailyYieldRate() (*big.Int, error) {
	return parsePositive("DailyYieldRateScaled", c.DailyYieldRateScaled)
}

func parsePositive(name, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("config: %s is required", name)
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("config: %s %q is not a decimal integer", name, value)
	}
	if parsed.Sign() <= 0 {
		return nil, fmt.Errorf("config: %s must be positive", name)
	}
	return parsed, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		OwnerAddress:         "0x1000000000000000000000000000000000000001",
		PoolAddress:          "0x2000000000000000000000000000000000000002",
		AssetAddress:         "0x3000000000000000000000000000000000000003",
		MinimumStake:         "100",
		DailyYieldRateScaled: "100000000",
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

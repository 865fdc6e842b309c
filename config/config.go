package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"redbank/core/types"
)

type Config struct {
	// AdminAddress is the hex address allowed to run governance messages.
	AdminAddress string `toml:"AdminAddress"`
	// CloseFactorBps caps the share of a debt one liquidation may repay,
	// in basis points.
	CloseFactorBps uint64 `toml:"CloseFactorBps"`
	// RewardDenom is the asset incentive rewards are paid out in.
	RewardDenom string `toml:"RewardDenom"`
	// OracleMaxAgeSeconds invalidates price quotes older than this; zero
	// disables the staleness check.
	OracleMaxAgeSeconds uint64 `toml:"OracleMaxAgeSeconds"`
	DataDir             string `toml:"DataDir"`
}

const (
	defaultCloseFactorBps = 5000
	defaultRewardDenom    = "umars"
	defaultOracleMaxAge   = 1800
	defaultDataDir        = "./redbank-data"
)

// Load reads the configuration from path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CloseFactorBps == 0 {
		c.CloseFactorBps = defaultCloseFactorBps
	}
	if strings.TrimSpace(c.RewardDenom) == "" {
		c.RewardDenom = defaultRewardDenom
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
}

// Validate rejects configurations the processor cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AdminAddress) != "" {
		if _, err := types.AddressFromHex(c.AdminAddress); err != nil {
			return fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
	}
	if c.CloseFactorBps > 10_000 {
		return fmt.Errorf("config: CloseFactorBps %d above 10000", c.CloseFactorBps)
	}
	return nil
}

// Admin parses the configured admin address; the zero address when unset.
func (c *Config) Admin() (types.Address, error) {
	if strings.TrimSpace(c.AdminAddress) == "" {
		return types.Address{}, nil
	}
	return types.AddressFromHex(c.AdminAddress)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{OracleMaxAgeSeconds: defaultOracleMaxAge}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

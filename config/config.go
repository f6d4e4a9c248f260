package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config captures the vestd node configuration.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	Env              string `toml:"Env"`
	ScheduleFile     string `toml:"ScheduleFile"`
	ScheduleStart    int64  `toml:"ScheduleStart"`
	DayLengthSeconds uint64 `toml:"DayLengthSeconds"`
	BuybackRateBps   uint32 `toml:"BuybackRateBps"`
	PayoutQuantum    string `toml:"PayoutQuantum"`
	RewardToken      string `toml:"RewardToken"`
	PaymentToken     string `toml:"PaymentToken"`
	TreasuryAddress  string `toml:"TreasuryAddress"`
	AdminAddress     string `toml:"AdminAddress"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		RPCAddress:       ":8645",
		DataDir:          "./vestd-data",
		Env:              "dev",
		DayLengthSeconds: 86400,
		BuybackRateBps:   500,
		PayoutQuantum:    "1000000000000",
		RewardToken:      "VST",
		PaymentToken:     "USDV",
	}
}

// Load reads a TOML configuration file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.DayLengthSeconds == 0 {
		cfg.DayLengthSeconds = 86400
	}
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8645"
	}
	return cfg, nil
}

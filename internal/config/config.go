package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/blocksim/internal/anomaly"
	"github.com/eigerco/blocksim/internal/pipeline"
	"github.com/eigerco/blocksim/internal/validation"
	"github.com/eigerco/blocksim/pkg/log"
)

const (
	EnvServerHost          = "BLOCKSIM_SERVER_HOST"
	EnvServerPort          = "BLOCKSIM_SERVER_PORT"
	EnvAllowedOrigins      = "BLOCKSIM_CORS_ORIGINS"
	EnvLogLevel            = "BLOCKSIM_LOG_LEVEL"
	EnvLogJSON             = "BLOCKSIM_LOG_JSON"
	EnvDeployerKey         = "BLOCKSIM_DEPLOYER_KEY"
	EnvLegacyDeployerKey   = "DEPLOYER_API_KEY"
	EnvRewardAmount        = "BLOCKSIM_REWARD_AMOUNT"
	EnvSlashPercentage     = "BLOCKSIM_SLASH_PERCENTAGE"
	EnvFlagThreshold       = "BLOCKSIM_FLAG_THRESHOLD"
	EnvMagnitudeThreshold  = "BLOCKSIM_MAGNITUDE_THRESHOLD"
	EnvMaxDevicesPerWallet = "BLOCKSIM_MAX_DEVICES_PER_WALLET"
	EnvStalenessBound      = "BLOCKSIM_STALENESS_BOUND"
	EnvClockSkew           = "BLOCKSIM_CLOCK_SKEW"

	MinPortNumber = 1
	MaxPortNumber = 65535
)

var ErrMissingDeployerKey = errors.New("deployer key is not configured")

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Deployer   DeployerConfig   `yaml:"deployer"`
	Economics  EconomicsConfig  `yaml:"economics"`
	Validation ValidationConfig `yaml:"validation"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type DeployerConfig struct {
	Key string `yaml:"key"`
}

type EconomicsConfig struct {
	RewardAmount    float64 `yaml:"reward_amount"`
	SlashPercentage float64 `yaml:"slash_percentage"`
	FlagThreshold   float64 `yaml:"flag_threshold"`
}

type ValidationConfig struct {
	MaxDevicesPerWallet int           `yaml:"max_devices_per_wallet"`
	StalenessBound      time.Duration `yaml:"staleness_bound"`
	ClockSkew           time.Duration `yaml:"clock_skew"`
	MagnitudeThreshold  float64       `yaml:"magnitude_threshold"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise. The deployer key is left empty.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Economics: EconomicsConfig{
			RewardAmount:    pipeline.DefaultRewardAmount,
			SlashPercentage: pipeline.DefaultSlashPercentage,
			FlagThreshold:   pipeline.DefaultFlagThreshold,
		},
		Validation: ValidationConfig{
			MaxDevicesPerWallet: validation.DefaultMaxDevicesPerWallet,
			StalenessBound:      validation.DefaultStalenessBound,
			ClockSkew:           validation.DefaultClockSkew,
			MagnitudeThreshold:  anomaly.DefaultMagnitudeThreshold,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and BLOCKSIM_ environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup(EnvServerHost); ok {
		c.Server.Host = v
	}
	if v, ok := lookup(EnvAllowedOrigins); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLegacyDeployerKey); ok {
		c.Deployer.Key = v
	}
	if v, ok := lookup(EnvDeployerKey); ok {
		c.Deployer.Key = v
	}

	var err error
	set := func(key string, parse func(string) error) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		if perr := parse(v); perr != nil {
			err = fmt.Errorf("invalid %s: %w", key, perr)
		}
	}
	set(EnvServerPort, func(v string) (e error) { c.Server.Port, e = strconv.Atoi(v); return })
	set(EnvLogJSON, func(v string) (e error) { c.Log.JSON, e = strconv.ParseBool(v); return })
	set(EnvRewardAmount, func(v string) (e error) { c.Economics.RewardAmount, e = strconv.ParseFloat(v, 64); return })
	set(EnvSlashPercentage, func(v string) (e error) { c.Economics.SlashPercentage, e = strconv.ParseFloat(v, 64); return })
	set(EnvFlagThreshold, func(v string) (e error) { c.Economics.FlagThreshold, e = strconv.ParseFloat(v, 64); return })
	set(EnvMagnitudeThreshold, func(v string) (e error) { c.Validation.MagnitudeThreshold, e = strconv.ParseFloat(v, 64); return })
	set(EnvMaxDevicesPerWallet, func(v string) (e error) { c.Validation.MaxDevicesPerWallet, e = strconv.Atoi(v); return })
	set(EnvStalenessBound, func(v string) (e error) { c.Validation.StalenessBound, e = time.ParseDuration(v); return })
	set(EnvClockSkew, func(v string) (e error) { c.Validation.ClockSkew, e = time.ParseDuration(v); return })
	return err
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("invalid server.host: must not be empty")
	}
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return fmt.Errorf("invalid server.port: must be in range %d..%d", MinPortNumber, MaxPortNumber)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid server timeouts: must be > 0")
	}
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Deployer.Key == "" {
		return fmt.Errorf("%w: set %s or deployer.key", ErrMissingDeployerKey, EnvDeployerKey)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"economics.reward_amount", c.Economics.RewardAmount},
		{"economics.slash_percentage", c.Economics.SlashPercentage},
		{"economics.flag_threshold", c.Economics.FlagThreshold},
		{"validation.magnitude_threshold", c.Validation.MagnitudeThreshold},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("invalid %s: must be a finite number", f.name)
		}
	}
	if c.Economics.RewardAmount < 0 {
		return fmt.Errorf("invalid economics.reward_amount: must be >= 0")
	}
	if c.Economics.SlashPercentage < 0 || c.Economics.SlashPercentage > 1 {
		return fmt.Errorf("invalid economics.slash_percentage: must be in [0, 1]")
	}
	if c.Economics.FlagThreshold < 0 || c.Economics.FlagThreshold > 1 {
		return fmt.Errorf("invalid economics.flag_threshold: must be in [0, 1]")
	}
	if c.Validation.MaxDevicesPerWallet < 1 {
		return fmt.Errorf("invalid validation.max_devices_per_wallet: must be >= 1")
	}
	if c.Validation.StalenessBound <= 0 {
		return fmt.Errorf("invalid validation.staleness_bound: must be > 0")
	}
	if c.Validation.ClockSkew < 0 {
		return fmt.Errorf("invalid validation.clock_skew: must be >= 0")
	}
	if c.Validation.MagnitudeThreshold <= 0 {
		return fmt.Errorf("invalid validation.magnitude_threshold: must be > 0")
	}
	return nil
}

func (c Config) Submission() pipeline.SubmissionConfig {
	return pipeline.SubmissionConfig{
		RewardAmount:    c.Economics.RewardAmount,
		SlashPercentage: c.Economics.SlashPercentage,
		FlagThreshold:   c.Economics.FlagThreshold,
	}
}

func (c Config) Limits() validation.Limits {
	return validation.Limits{
		MaxDevicesPerWallet: c.Validation.MaxDevicesPerWallet,
		StalenessBound:      c.Validation.StalenessBound,
		ClockSkew:           c.Validation.ClockSkew,
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

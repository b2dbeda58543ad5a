package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CURVE_PG_DSN.
const EnvPrefix = "CURVE"

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MarketConfig holds the engine parameters shared by replay and serve.
// Addresses are hex strings and are parsed by the caller.
type MarketConfig struct {
	EngineAddress       string
	Admin               string
	Treasury            string
	ReserveAsset        string
	ReserveDecimals     uint8
	BuyFeeBps           uint16
	SellFeeBps          uint16
	DefaultThresholdUSD uint64
	OracleMaxAge        time.Duration
	Linear              bool
}

// ReplayConfig drives a replay of a command script.
type ReplayConfig struct {
	Market      MarketConfig
	Log         LogConfig
	Script      string
	Out         string
	PGDSN       string
	Snapshot    string
	DexCustody  string
	AutoMigrate bool

	// FailFast stops the replay at the first rejected command.
	FailFast     bool
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ServeConfig is a replay followed by the HTTP query surface.
type ServeConfig struct {
	ReplayConfig
	Listen         string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	Log    LogConfig
	In     string
	Out    string
	Errors string
}

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Log             LogConfig
	Input           string
	Window          string
	PGDSN           string
	BatchSize       int
	StateFile       string
	RecomputeFrom   string
	ReserveDecimals uint8
	TokenDecimals   uint8
}

// newViper merges defaults, CURVE_* environment variables, flags and an
// optional config file. Without cfgFile a ./config file is read when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-max-size-mb", 100)
	v.SetDefault("log-max-backups", 5)
	v.SetDefault("log-max-age-days", 28)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

var marketDefaults = map[string]interface{}{
	"engine-address":        "0x000000000000000000000000000000000000c0de",
	"reserve-decimals":      6,
	"buy-fee-bps":           100,
	"sell-fee-bps":          100,
	"default-threshold-usd": uint64(69_000),
	"oracle-max-age":        time.Hour,
	"out":                   "./data/logs.jsonl",
	"dex-custody":           "0x000000000000000000000000000000000000de00",
	"auto-migrate":          true,
	"batch-size":            500,
	"max-retries":           3,
	"retry-backoff":         500 * time.Millisecond,
}

func logConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:      v.GetString("log-level"),
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size-mb"),
		MaxBackups: v.GetInt("log-max-backups"),
		MaxAgeDays: v.GetInt("log-max-age-days"),
	}
}

func marketConfig(v *viper.Viper) (MarketConfig, error) {
	cfg := MarketConfig{
		EngineAddress:       v.GetString("engine-address"),
		Admin:               v.GetString("admin"),
		Treasury:            v.GetString("treasury"),
		ReserveAsset:        v.GetString("reserve-asset"),
		DefaultThresholdUSD: v.GetUint64("default-threshold-usd"),
		OracleMaxAge:        v.GetDuration("oracle-max-age"),
		Linear:              v.GetBool("linear"),
	}

	decimals := v.GetUint("reserve-decimals")
	if decimals > 36 {
		return MarketConfig{}, fmt.Errorf("reserve-decimals %d out of range", decimals)
	}
	cfg.ReserveDecimals = uint8(decimals)

	buy, sell := v.GetUint("buy-fee-bps"), v.GetUint("sell-fee-bps")
	if buy > 0xffff || sell > 0xffff {
		return MarketConfig{}, fmt.Errorf("fee bps out of range")
	}
	cfg.BuyFeeBps, cfg.SellFeeBps = uint16(buy), uint16(sell)
	return cfg, nil
}

func replayConfig(v *viper.Viper) (ReplayConfig, error) {
	market, err := marketConfig(v)
	if err != nil {
		return ReplayConfig{}, err
	}
	return ReplayConfig{
		Market:       market,
		Log:          logConfig(v),
		Script:       v.GetString("script"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		Snapshot:     v.GetString("snapshot"),
		DexCustody:   v.GetString("dex-custody"),
		AutoMigrate:  v.GetBool("auto-migrate"),
		FailFast:     v.GetBool("fail-fast"),
		BatchSize:    v.GetInt("batch-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}, nil
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, marketDefaults)
	if err != nil {
		return ReplayConfig{}, err
	}
	return replayConfig(v)
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := map[string]interface{}{
		"listen":          ":8080",
		"allowed-origins": "*",
		"read-timeout":    10 * time.Second,
		"write-timeout":   10 * time.Second,
	}
	for k, val := range marketDefaults {
		defaults[k] = val
	}
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ServeConfig{}, err
	}
	replay, err := replayConfig(v)
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		ReplayConfig:   replay,
		Listen:         v.GetString("listen"),
		AllowedOrigins: getStringSlice(v, "allowed-origins"),
		ReadTimeout:    v.GetDuration("read-timeout"),
		WriteTimeout:   v.GetDuration("write-timeout"),
	}, nil
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":    "./data/typed_events.jsonl",
		"errors": "./data/decode_errors.jsonl",
	})
	if err != nil {
		return DecodeConfig{}, err
	}
	return DecodeConfig{
		Log:    logConfig(v),
		In:     v.GetString("in"),
		Out:    v.GetString("out"),
		Errors: v.GetString("errors"),
	}, nil
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":       1000,
		"window":           "5m",
		"reserve-decimals": 6,
		"token-decimals":   6,
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	reserveDecimals, tokenDecimals := v.GetUint("reserve-decimals"), v.GetUint("token-decimals")
	if reserveDecimals > 36 || tokenDecimals > 36 {
		return AggregateConfig{}, fmt.Errorf("decimals out of range")
	}

	return AggregateConfig{
		Log:             logConfig(v),
		Input:           v.GetString("in"),
		Window:          v.GetString("window"),
		PGDSN:           v.GetString("pg-dsn"),
		BatchSize:       v.GetInt("batch-size"),
		StateFile:       v.GetString("state-file"),
		RecomputeFrom:   v.GetString("recompute-from"),
		ReserveDecimals: uint8(reserveDecimals),
		TokenDecimals:   uint8(tokenDecimals),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

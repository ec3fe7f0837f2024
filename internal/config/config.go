package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "CONTRACTSCOPE"
	DefaultIndexerWS = "wss://indexer.testnet-02.midnight.network/api/v1/graphql/ws"
)

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	Network          string
	IndexerWS        string
	Timeout          time.Duration
	Addresses        []string
	Buffer           int
	Tick             time.Duration
	KeepAliveTicks   int
	HandshakeTimeout time.Duration
	Resubscribe      bool
	MaxRetries       int
	RetryBackoff     time.Duration
	Out              string
	PGDSN            string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisChannel     string
	MetricsAddr      string
	LogLevel         string
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"network":           "testnet",
		"indexer-ws":        DefaultIndexerWS,
		"timeout":           5 * time.Minute,
		"buffer":            100,
		"tick":              time.Second,
		"keepalive-ticks":   30,
		"handshake-timeout": 10 * time.Second,
		"resubscribe":       false,
		"max-retries":       0,
		"retry-backoff":     500 * time.Millisecond,
		"out":               "./data/events.jsonl",
		"redis-channel":     "contract-events",
		"log-level":         "info",
	})
	if err != nil {
		return WatchConfig{}, err
	}

	cfg := WatchConfig{
		Network:          v.GetString("network"),
		IndexerWS:        v.GetString("indexer-ws"),
		Timeout:          v.GetDuration("timeout"),
		Addresses:        getStringSlice(v, "address"),
		Buffer:           v.GetInt("buffer"),
		Tick:             v.GetDuration("tick"),
		KeepAliveTicks:   v.GetInt("keepalive-ticks"),
		HandshakeTimeout: v.GetDuration("handshake-timeout"),
		Resubscribe:      v.GetBool("resubscribe"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisDB:          v.GetInt("redis-db"),
		RedisChannel:     v.GetString("redis-channel"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// load builds a viper instance from defaults, environment, flags and an
// optional config file. Without cfgFile a ./config.* file is read if present.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

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

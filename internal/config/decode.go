package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	Network    string
	In         string
	Out        string
	Errors     string
	SkipFailed bool
	LogLevel   string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"network":     "testnet",
		"in":          "./data/events.jsonl",
		"out":         "./data/decoded_events.jsonl",
		"errors":      "./data/decode_errors.jsonl",
		"skip-failed": false,
		"log-level":   "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		Network:    v.GetString("network"),
		In:         v.GetString("in"),
		Out:        v.GetString("out"),
		Errors:     v.GetString("errors"),
		SkipFailed: v.GetBool("skip-failed"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

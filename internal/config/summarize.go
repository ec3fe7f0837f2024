package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// SummarizeConfig holds configuration for the summarize command.
type SummarizeConfig struct {
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	LogLevel      string
}

// LoadSummarize merges config file, environment variables, and flags into SummarizeConfig.
func LoadSummarize(cfgFile string, flags *pflag.FlagSet) (SummarizeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"in":         "./data/events.jsonl",
		"window":     "1h",
		"batch-size": 1000,
		"state-name": "summarize",
		"log-level":  "info",
	})
	if err != nil {
		return SummarizeConfig{}, err
	}

	return SummarizeConfig{
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
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

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"contractScope/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "contractscope",
		Short:        "Contract activity watcher for GraphQL-over-WebSocket ledger indexers",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to contract actions and write them to the configured sinks",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("network", "testnet", "network name or id (undeployed, devnet, testnet, mainnet)")
	watchCmd.Flags().String("indexer-ws", config.DefaultIndexerWS, "indexer GraphQL websocket URL")
	watchCmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	watchCmd.Flags().Duration("timeout", 5*time.Minute, "session lifetime")
	watchCmd.Flags().Int("buffer", 100, "event channel capacity per session")
	watchCmd.Flags().Duration("tick", time.Second, "time_left tick interval")
	watchCmd.Flags().Int("keepalive-ticks", 30, "ticks between websocket pings")
	watchCmd.Flags().Duration("handshake-timeout", 10*time.Second, "dial and connection_init timeout")
	watchCmd.Flags().Bool("resubscribe", false, "start a new session when one ends")
	watchCmd.Flags().Int("max-retries", 0, "retry attempts for connect and handshake failures")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	watchCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for contract_events")
	watchCmd.Flags().String("redis-addr", "", "optional Redis address for event publishing")
	watchCmd.Flags().String("redis-password", "", "Redis password")
	watchCmd.Flags().Int("redis-db", 0, "Redis database")
	watchCmd.Flags().String("redis-channel", "contract-events", "Redis pub/sub channel")
	watchCmd.Flags().String("metrics-addr", "", "optional listen address for /healthz, /status and /metrics")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode contract states left as hex in an events JSONL file",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("network", "testnet", "network the states were recorded on")
	decodeCmd.Flags().String("in", "./data/events.jsonl", "input events JSONL")
	decodeCmd.Flags().String("out", "./data/decoded_events.jsonl", "output events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().Bool("skip-failed", false, "leave records that fail to decode out of --out")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize contract actions into windows stored in Postgres",
		RunE:  runSummarize,
	}

	summarizeCmd.Flags().String("in", "./data/events.jsonl", "input events JSONL")
	summarizeCmd.Flags().String("window", "1h", "summary window (e.g. 1m, 5m, 1h)")
	summarizeCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	summarizeCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	summarizeCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	summarizeCmd.Flags().String("state-name", "summarize", "progress entry name")
	summarizeCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	summarizeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(summarizeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

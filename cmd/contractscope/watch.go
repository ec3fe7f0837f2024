package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractScope/internal/api"
	"contractScope/internal/config"
	"contractScope/internal/indexer"
	"contractScope/internal/model"
	"contractScope/internal/storage"
	"contractScope/internal/storage/postgres"
	"contractScope/internal/storage/redispub"
	"contractScope/internal/watch"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	network, err := model.ParseNetworkID(cfg.Network)
	if err != nil {
		return err
	}
	addresses := indexer.ParseAddresses(cfg.Addresses)
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	contractIndexer, err := indexer.New(indexer.Config{
		Network:          network,
		IndexerWS:        cfg.IndexerWS,
		Timeout:          cfg.Timeout,
		TickInterval:     cfg.Tick,
		KeepAliveEvery:   cfg.KeepAliveTicks,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Fanout{storage.NewJsonlStorage(cfg.Out)}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	redisClient, err := redispub.NewClient(ctx, redispub.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sinks = append(sinks, redispub.NewPublisher(redispub.Options{
			Client:  redisClient,
			Channel: cfg.RedisChannel,
		}))
	}

	runner := watch.NewRunner(watch.RunConfig{
		Network:      network,
		Addresses:    addresses,
		Buffer:       cfg.Buffer,
		Resubscribe:  cfg.Resubscribe,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, contractIndexer, sinks, logger)

	logger.Info("watch start",
		zap.String("network", network.String()),
		zap.String("indexer_ws", cfg.IndexerWS),
		zap.Strings("addresses", addresses),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("buffer", cfg.Buffer),
		zap.Bool("resubscribe", cfg.Resubscribe),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("redis_addr", cfg.RedisAddr),
	)

	if cfg.MetricsAddr == "" {
		return runner.Run(ctx)
	}

	server := api.NewServer(api.Options{
		Status: api.Status{
			Network:   network.String(),
			IndexerWS: cfg.IndexerWS,
			Addresses: addresses,
			StartedAt: time.Now().UTC(),
		},
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		return server.Run(serverCtx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		defer stopServer()
		return runner.Run(gctx)
	})
	return g.Wait()
}

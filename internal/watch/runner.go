package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractScope/internal/indexer"
	"contractScope/internal/model"
	"contractScope/internal/storage"
)

const maxBatch = 64

// Subscriber starts one contract subscription and blocks until it ends.
type Subscriber interface {
	SubscribeToContract(ctx context.Context, address string, out chan<- model.Event) error
}

// RunConfig holds runtime settings for the watcher.
type RunConfig struct {
	Network      model.NetworkID
	Addresses    []string
	Buffer       int
	Resubscribe  bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner drives one subscription per address and writes emitted events to storage.
type Runner struct {
	cfg        RunConfig
	subscriber Subscriber
	storage    storage.Storage
	logger     *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, subscriber Subscriber, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		subscriber: subscriber,
		storage:    storageSink,
		logger:     logger,
	}
}

// Run watches every configured address until the sessions end or ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.subscriber == nil {
		return fmt.Errorf("subscriber is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.Buffer <= 0 {
		return fmt.Errorf("buffer must be greater than zero")
	}
	addresses := indexer.ParseAddresses(r.cfg.Addresses)
	if len(addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, address := range addresses {
		address := address
		g.Go(func() error {
			return r.watch(gctx, address)
		})
	}
	return g.Wait()
}

func (r *Runner) watch(ctx context.Context, address string) error {
	logger := r.logger.With(zap.String("contract", address))
	for round := 1; ; round++ {
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, retryable, func(ctx context.Context) error {
			err := r.session(ctx, address, logger)
			if err != nil {
				logger.Warn("session failed", zap.Error(err), zap.Int("round", round))
			}
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch %s: %w", address, err)
		}
		if !r.cfg.Resubscribe || ctx.Err() != nil {
			return nil
		}
		logger.Info("resubscribe", zap.Int("round", round+1))
	}
}

// session runs one subscription and consumes its events until the session
// closes the channel.
func (r *Runner) session(ctx context.Context, address string, logger *zap.Logger) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan model.Event, r.cfg.Buffer)
	result := make(chan error, 1)
	go func() {
		result <- r.subscriber.SubscribeToContract(sessionCtx, address, out)
	}()

	// Sinks still receive the final events after ctx is cancelled.
	sinkCtx := context.WithoutCancel(ctx)

	var (
		storeErr  error
		contracts int
		total     int
	)
	for ev := range out {
		batch := r.appendRecord(nil, address, ev, logger)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-out:
				if !ok {
					break drain
				}
				batch = r.appendRecord(batch, address, next, logger)
			default:
				break drain
			}
		}
		if len(batch) == 0 {
			continue
		}

		for _, record := range batch {
			if record.IsContractAction() {
				contracts++
			}
		}
		total += len(batch)
		if storeErr != nil {
			continue
		}
		if err := r.storage.PutEventBatch(sinkCtx, batch); err != nil {
			logger.Error("store events failed", zap.Error(err), zap.Int("records", len(batch)))
			storeErr = fmt.Errorf("store events: %w", err)
			cancel()
		}
	}

	err := <-result
	logger.Info("session complete", zap.Int("records", total), zap.Int("contract_actions", contracts))
	if storeErr != nil {
		return storeErr
	}
	return err
}

func (r *Runner) appendRecord(batch []model.EventRecord, address string, ev model.Event, logger *zap.Logger) []model.EventRecord {
	now := time.Now().UTC()
	record, ok := buildEventRecord(r.cfg.Network, address, ev, now, now)
	if !ok {
		logger.Debug("time left", zap.Uint64("seconds", ev.TimeLeftSeconds()), zap.String("session", ev.SessionID))
		return batch
	}
	return append(batch, record)
}

// retryable reports whether a failed session is worth re-running.
func retryable(err error) bool {
	return errors.Is(err, indexer.ErrConnect) ||
		errors.Is(err, indexer.ErrHandshake) ||
		errors.Is(err, indexer.ErrBackpressure)
}

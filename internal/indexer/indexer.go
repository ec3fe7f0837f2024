package indexer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contractScope/internal/ledger"
	"contractScope/internal/model"
)

const (
	DefaultTickInterval     = time.Second
	DefaultKeepAliveEvery   = 30
	DefaultHandshakeTimeout = 10 * time.Second
)

// StateDecoder turns raw ledger state into a printable rendering.
type StateDecoder interface {
	Decode(raw []byte, network model.NetworkID) (string, error)
}

// Config holds the settings shared by every session of a ContractIndexer.
type Config struct {
	Network   model.NetworkID
	IndexerWS string
	Timeout   time.Duration

	// TickInterval is the period of time_left events.
	TickInterval time.Duration
	// KeepAliveEvery is the number of ticks between websocket pings.
	KeepAliveEvery int
	// HandshakeTimeout bounds dial plus connection_init acknowledgement.
	HandshakeTimeout time.Duration
	Decoder          StateDecoder
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.KeepAliveEvery <= 0 {
		c.KeepAliveEvery = DefaultKeepAliveEvery
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Decoder == nil {
		c.Decoder = ledger.NewStateDecoder()
	}
	return c
}

func (c Config) validate() error {
	if !c.Network.Valid() {
		return fmt.Errorf("unsupported network: %s", c.Network)
	}
	if c.IndexerWS == "" {
		return fmt.Errorf("indexer websocket url is required")
	}
	u, err := url.Parse(c.IndexerWS)
	if err != nil {
		return fmt.Errorf("parse indexer websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("indexer websocket url must use ws or wss, got %q", u.Scheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than zero")
	}
	return nil
}

// ContractIndexer starts contract subscriptions against one indexer endpoint.
// It holds no per-session state and is safe for concurrent use.
type ContractIndexer struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds a ContractIndexer.
func New(cfg Config, logger *zap.Logger) (*ContractIndexer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ContractIndexer{cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration.
func (c *ContractIndexer) Config() Config {
	return c.cfg
}

// SubscribeToContract runs one subscription session for address and blocks
// until it ends. Events are delivered to out with non-blocking sends; the
// session closes out when it returns, so callers must not close it themselves.
//
// The session ends after the configured timeout, when ctx is cancelled, or when
// the indexer stops the stream. Those endings return nil. Connection and
// handshake failures, protocol violations, invalid state hex and a full out
// channel are returned as errors wrapping the package sentinels.
func (c *ContractIndexer) SubscribeToContract(ctx context.Context, address string, out chan<- model.Event) error {
	if out == nil {
		return fmt.Errorf("event channel is nil")
	}

	id := uuid.NewString()
	framed := FramedAddress(c.cfg.Network, address)
	s := &session{
		id:     id,
		cfg:    c.cfg,
		framed: framed,
		out:    out,
		logger: c.logger.With(
			zap.String("session", id),
			zap.String("contract", address),
			zap.String("framed_address", framed),
		),
	}
	return s.run(ctx)
}

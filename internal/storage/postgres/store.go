package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contractScope/internal/model"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for contract events and summaries.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts event records into contract_events.
func (s *Store) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO contract_events (
				session_id, network, contract, kind, type_name, address, state, state_decoded,
				chain_state, reason, error, received_at, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			r.SessionID,
			r.Network,
			r.Contract,
			r.Kind,
			r.TypeName,
			r.Address,
			r.State,
			r.StateDecoded,
			r.ChainState,
			r.Reason,
			r.Error,
			time.Unix(int64(r.ReceivedAt), 0).UTC(),
			ingestedAt(r.IngestedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert contract event: %w", err)
		}
	}
	return nil
}

// UpsertActionWindows inserts or updates action window summaries.
func (s *Store) UpsertActionWindows(ctx context.Context, windows []model.ContractActionWindow) error {
	if len(windows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(`
			INSERT INTO contract_action_windows (
				network, address, type_name, window_size_seconds, window_start_ts, window_end_ts,
				action_count, decoded_count, first_chain_state, last_chain_state, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (network, address, type_name, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				action_count = EXCLUDED.action_count,
				decoded_count = EXCLUDED.decoded_count,
				first_chain_state = EXCLUDED.first_chain_state,
				last_chain_state = EXCLUDED.last_chain_state,
				updated_at = now()
		`,
			w.Network,
			w.Address,
			w.TypeName,
			w.WindowSizeSecs,
			w.WindowStart,
			w.WindowEnd,
			int64(w.ActionCount),
			int64(w.DecodedCount),
			w.FirstChainState,
			w.LastChainState,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range windows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func ingestedAt(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id      BIGINT      NOT NULL,
	pool_id       TEXT        NOT NULL,
	block_number  BIGINT      NOT NULL,
	block_ts      BIGINT      NOT NULL DEFAULT 0,
	kind          TEXT        NOT NULL,
	state         JSONB       NOT NULL,
	taken_at      TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_id, block_number)
);

CREATE TABLE IF NOT EXISTS route_runs (
	id            BIGSERIAL   PRIMARY KEY,
	root_pool     TEXT        NOT NULL,
	token_in      TEXT        NOT NULL,
	amount_in     NUMERIC     NOT NULL,
	has_referrer  BOOLEAN     NOT NULL,
	step_count    INT         NOT NULL,
	failed_count  INT         NOT NULL,
	totals        JSONB       NOT NULL,
	error         TEXT,
	result        JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for snapshots and route runs.
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

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// PutSnapshots inserts or updates pool snapshots.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		state, err := json.Marshal(snap.State)
		if err != nil {
			return fmt.Errorf("marshal state %s: %w", snap.State.ID, err)
		}
		batch.Queue(`
			INSERT INTO pool_snapshots (
				chain_id, pool_id, block_number, block_ts, kind, state, taken_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_id, block_number)
			DO UPDATE SET
				block_ts = EXCLUDED.block_ts,
				kind = EXCLUDED.kind,
				state = EXCLUDED.state,
				taken_at = EXCLUDED.taken_at,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.State.ID,
			int64(snap.BlockNumber),
			int64(snap.Timestamp),
			string(snap.State.Kind),
			state,
			snap.TakenAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutRouteRuns inserts route simulation runs.
func (s *Store) PutRouteRuns(ctx context.Context, runs []model.RouteRun) error {
	if len(runs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, run := range runs {
		run := run
		totals, err := json.Marshal(run.Totals)
		if err != nil {
			return fmt.Errorf("marshal totals: %w", err)
		}
		result := []byte(run.Result)
		if len(result) == 0 {
			result = []byte("null")
		}
		var runErr *string
		if run.Error != "" {
			runErr = &run.Error
		}
		batch.Queue(`
			INSERT INTO route_runs (
				root_pool, token_in, amount_in, has_referrer, step_count, failed_count, totals, error, result, created_at
			) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10)
		`,
			run.RootPool,
			string(run.TokenIn),
			run.AmountIn,
			run.HasReferrer,
			run.StepCount,
			run.FailedCount,
			totals,
			runErr,
			result,
			run.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range runs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ReadPoolState returns the state of poolID from its most recent snapshot.
func (s *Store) ReadPoolState(ctx context.Context, poolID string) (model.State, error) {
	snap, err := s.LoadSnapshot(ctx, poolID, 0)
	if err != nil {
		return model.State{}, err
	}
	return snap.State, nil
}

// LoadSnapshot returns the latest snapshot of poolID at or below atBlock;
// atBlock 0 means the latest stored.
func (s *Store) LoadSnapshot(ctx context.Context, poolID string, atBlock uint64) (model.Snapshot, error) {
	if poolID == "" {
		return model.Snapshot{}, fmt.Errorf("pool id required")
	}
	query := `
		SELECT chain_id, block_number, block_ts, state, taken_at
		FROM pool_snapshots
		WHERE pool_id = $1 AND ($2::bigint = 0 OR block_number <= $2::bigint)
		ORDER BY block_number DESC
		LIMIT 1
	`
	var (
		chainID, block, ts int64
		raw                []byte
		takenAt            string
	)
	row := s.pool.QueryRow(ctx, query, poolID, int64(atBlock))
	if err := row.Scan(&chainID, &block, &ts, &raw, &takenAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, fmt.Errorf("no snapshot for %s: %w", poolID, dexerr.ErrUnknownPool)
		}
		return model.Snapshot{}, err
	}
	var state model.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode state %s: %w", poolID, err)
	}
	if err := state.CheckWords(); err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		ChainID:     uint64(chainID),
		BlockNumber: uint64(block),
		Timestamp:   uint64(ts),
		State:       state,
		TakenAt:     takenAt,
	}, nil
}

// AtBlock returns a reader serving each pool's latest snapshot at or below
// block.
func (s *Store) AtBlock(block uint64) *BlockReader {
	return &BlockReader{store: s, block: block}
}

// BlockReader reads snapshots pinned to a block height.
type BlockReader struct {
	store *Store
	block uint64
}

func (r *BlockReader) ReadPoolState(ctx context.Context, poolID string) (model.State, error) {
	snap, err := r.store.LoadSnapshot(ctx, poolID, r.block)
	if err != nil {
		return model.State{}, err
	}
	return snap.State, nil
}

// Package pgckpt implements store.WorkflowCheckpoint on PostgreSQL via
// pgx/v5's native pool/transaction API (rather than database/sql), grounded
// on the teacher pack's Postgres convention (vanducng-goclaw registers
// jackc/pgx/v5/stdlib for golang-migrate-driven schema management; this
// package uses pgx's own pool directly for the hot path). Save runs inside
// an explicit BEGIN/COMMIT transaction so the checkpoint write is atomic —
// the SQL analogue of the write-temp-then-rename contract spec.md §4.7
// requires, satisfied here by Postgres's own transactional guarantees
// instead of a filesystem rename.
package pgckpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_checkpoints (
	workflow_id TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// Store implements store.WorkflowCheckpoint against a Postgres database.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn and ensures the checkpoint table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pgckpt: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgckpt: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgckpt: init schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) Save(ctx context.Context, state domain.WorkflowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("pgckpt: marshal state: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgckpt: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_checkpoints (workflow_id, status, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (workflow_id) DO UPDATE
		SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		string(state.WorkflowID), string(state.Status), raw)
	if err != nil {
		return fmt.Errorf("pgckpt: upsert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgckpt: commit: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM workflow_checkpoints WHERE workflow_id = $1`, string(workflowID)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkflowState{}, false, nil
		}
		return domain.WorkflowState{}, false, err
	}
	var state domain.WorkflowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.WorkflowState{}, false, fmt.Errorf("pgckpt: unmarshal state: %w", err)
	}
	return state, true, nil
}

func (s *Store) Delete(ctx context.Context, workflowID domain.WorkflowID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM workflow_checkpoints WHERE workflow_id = $1`, string(workflowID))
	return err
}

func (s *Store) ListPending(ctx context.Context) ([]domain.WorkflowID, error) {
	rows, err := s.pool.Query(ctx, `SELECT workflow_id FROM workflow_checkpoints WHERE status NOT IN ($1, $2, $3)`,
		string(domain.WorkflowCompleted), string(domain.WorkflowFailed), string(domain.WorkflowCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []domain.WorkflowID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.WorkflowID(id))
	}
	return ids, rows.Err()
}

var _ store.WorkflowCheckpoint = (*Store)(nil)

// Package sqliteconv implements store.ConversationStore on a local SQLite
// file via database/sql, grounded on the SQL session-service idiom shared by
// haasonsaas-nexus and kadirpekel-hector: a normalized messages/artifacts
// table per session plus JSON-serialized payload columns, guarded by
// database-level locking instead of an in-process mutex.
package sqliteconv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS session_messages (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS session_artifacts (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS session_summaries (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Store implements store.ConversationStore against a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// initializes its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqliteconv: path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqliteconv: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: serialize writers to avoid SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqliteconv: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSession(ctx context.Context, tx *sql.Tx, sessionID domain.SessionID, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at=excluded.updated_at`,
		string(sessionID), now, now)
	return err
}

func (s *Store) Get(ctx context.Context, sessionID domain.SessionID) (store.ConversationRecord, error) {
	var rec store.ConversationRecord
	rec.SessionID = sessionID
	row := s.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM sessions WHERE session_id = ?`, string(sessionID))
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ConversationRecord{}, store.ErrSessionNotFound
		}
		return store.ConversationRecord{}, err
	}

	msgs, err := scanPayloads(ctx, s.db, "session_messages", sessionID)
	if err != nil {
		return store.ConversationRecord{}, err
	}
	for _, raw := range msgs {
		var turn domain.ConversationTurn
		if err := json.Unmarshal(raw, &turn); err != nil {
			return store.ConversationRecord{}, err
		}
		rec.Messages = append(rec.Messages, turn)
	}

	arts, err := scanPayloads(ctx, s.db, "session_artifacts", sessionID)
	if err != nil {
		return store.ConversationRecord{}, err
	}
	for _, raw := range arts {
		var a domain.Artifact
		if err := json.Unmarshal(raw, &a); err != nil {
			return store.ConversationRecord{}, err
		}
		rec.Artifacts = append(rec.Artifacts, a)
	}

	sums, err := scanPayloads(ctx, s.db, "session_summaries", sessionID)
	if err != nil {
		return store.ConversationRecord{}, err
	}
	for _, raw := range sums {
		var sm store.WorkflowSummary
		if err := json.Unmarshal(raw, &sm); err != nil {
			return store.ConversationRecord{}, err
		}
		rec.Summaries = append(rec.Summaries, sm)
	}
	return rec, nil
}

func scanPayloads(ctx context.Context, db *sql.DB, table string, sessionID domain.SessionID) ([][]byte, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE session_id = ? ORDER BY seq ASC`, table), string(sessionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, []byte(payload))
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionID, error) {
	query := `SELECT session_id FROM sessions ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []domain.SessionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.SessionID(id))
	}
	return ids, rows.Err()
}

func (s *Store) appendPayload(ctx context.Context, table string, sessionID domain.SessionID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := domain.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID, now); err != nil {
		return err
	}
	var nextSeq int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(seq), -1) + 1 FROM %s WHERE session_id = ?`, table), string(sessionID)).Scan(&nextSeq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (session_id, seq, payload) VALUES (?, ?, ?)`, table), string(sessionID), nextSeq, string(raw)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendMessage(ctx context.Context, sessionID domain.SessionID, turn domain.ConversationTurn) error {
	return s.appendPayload(ctx, "session_messages", sessionID, turn)
}

func (s *Store) AppendArtifact(ctx context.Context, sessionID domain.SessionID, artifact domain.Artifact) error {
	return s.appendPayload(ctx, "session_artifacts", sessionID, artifact)
}

func (s *Store) AppendSummary(ctx context.Context, sessionID domain.SessionID, summary store.WorkflowSummary) error {
	return s.appendPayload(ctx, "session_summaries", sessionID, summary)
}

func (s *Store) Touch(ctx context.Context, sessionID domain.SessionID, t time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`, t, string(sessionID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

var _ store.ConversationStore = (*Store)(nil)

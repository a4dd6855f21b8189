package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

// SQLiteStore persists snapshots, conversation turns, and progress rows
// in a single SQLite file, grounded on the teacher's SQLiteStore[S]
// (graph/store/sqlite.go) — same WAL-mode-plus-busy-timeout setup and
// auto-migrated schema, narrowed to our three plain-data tables instead
// of the teacher's five (no checkpoints_v2, idempotency_keys, or
// events_outbox: those exist to support concurrent/replayed execution,
// which SPEC_FULL.md's sequential-only executor does not have).
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path
// and migrates its schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_snapshots (
			conversation_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS progress_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			invocation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			owner TEXT NOT NULL,
			node_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_conv_inv ON progress_events(conversation_id, invocation_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveSnapshot implements executor.StateStore.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, conversationID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_snapshots (conversation_id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(conversation_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		conversationID, string(data))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements executor.StateStore.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, conversationID string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM workflow_snapshots WHERE conversation_id = ?`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load snapshot: %w", err)
	}
	return []byte(data), true, nil
}

// DeleteSnapshot implements executor.StateStore.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflow_snapshots WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}
	return nil
}

// LoadTurns implements node.ConversationStore, returning the most
// recent limit turns in chronological order.
func (s *SQLiteStore) LoadTurns(ctx context.Context, conversationID string, limit int) ([]state.Turn, error) {
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}
	defer rows.Close()

	var reversed []state.Turn
	for rows.Next() {
		var t state.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		reversed = append(reversed, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}

	turns := make([]state.Turn, len(reversed))
	for i, t := range reversed {
		turns[len(reversed)-1-i] = t
	}
	return turns, nil
}

// AppendTurns implements node.ConversationStore.
func (s *SQLiteStore) AppendTurns(ctx context.Context, conversationID string, turns []state.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var nextSeq int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE conversation_id = ?`, conversationID).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("store: append turns: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append turns: %w", err)
	}
	for i, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_turns (conversation_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			conversationID, nextSeq+i, t.Role, t.Content); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: append turns: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append turns: %w", err)
	}
	return nil
}

// Emit implements progress.Sink, persisting one row per call. Emit has
// no error return, so a failed write is simply dropped: the Channel
// never sees it and does not retry it (spec §4.6: "progress loss never
// aborts execution").
func (s *SQLiteStore) Emit(event progress.Event) {
	payload, _ := json.Marshal(event.Payload)
	_, _ = s.db.ExecContext(context.Background(),
		`INSERT INTO progress_events (conversation_id, invocation_id, seq, owner, node_id, kind, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ConversationID, event.InvocationID, event.Seq, event.Owner, event.NodeID, string(event.Kind), string(payload))
}

// EmitBatch implements progress.Sink.
func (s *SQLiteStore) EmitBatch(ctx context.Context, events []progress.Event) error {
	for _, e := range events {
		payload, _ := json.Marshal(e.Payload)
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO progress_events (conversation_id, invocation_id, seq, owner, node_id, kind, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ConversationID, e.InvocationID, e.Seq, e.Owner, e.NodeID, string(e.Kind), string(payload)); err != nil {
			return fmt.Errorf("store: emit batch: %w", err)
		}
	}
	return nil
}

// Flush is a no-op: every Emit already commits synchronously.
func (s *SQLiteStore) Flush(_ context.Context) error { return nil }

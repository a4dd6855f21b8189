package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

// MySQLStore is the production-grade counterpart to SQLiteStore,
// grounded on the teacher's MySQLStore[S] (graph/store/mysql.go): same
// DSN-based connection, pooled *sql.DB, auto-migrated schema — narrowed
// to workflow_snapshots/conversation_turns/progress_events, identical
// in shape to SQLiteStore's tables modulo MySQL's AUTO_INCREMENT and
// upsert syntax.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL/MariaDB connection pool for dsn (e.g.
// "user:password@tcp(127.0.0.1:3306)/workflows?parseTime=true") and
// migrates its schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_snapshots (
			conversation_id VARCHAR(255) PRIMARY KEY,
			data LONGTEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			conversation_id VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			role VARCHAR(32) NOT NULL,
			content LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_turns_conversation (conversation_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS progress_events (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			conversation_id VARCHAR(255) NOT NULL,
			invocation_id VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			owner VARCHAR(255) NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			payload LONGTEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_progress_conv_inv (conversation_id, invocation_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

// SaveSnapshot implements executor.StateStore.
func (s *MySQLStore) SaveSnapshot(ctx context.Context, conversationID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_snapshots (conversation_id, data) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = CURRENT_TIMESTAMP`,
		conversationID, string(data))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements executor.StateStore.
func (s *MySQLStore) LoadSnapshot(ctx context.Context, conversationID string) ([]byte, bool, error) {
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
func (s *MySQLStore) DeleteSnapshot(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflow_snapshots WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}
	return nil
}

// LoadTurns implements node.ConversationStore.
func (s *MySQLStore) LoadTurns(ctx context.Context, conversationID string, limit int) ([]state.Turn, error) {
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
func (s *MySQLStore) AppendTurns(ctx context.Context, conversationID string, turns []state.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append turns: %w", err)
	}

	var nextSeq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE conversation_id = ? FOR UPDATE`, conversationID).Scan(&nextSeq); err != nil {
		_ = tx.Rollback()
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

// Emit implements progress.Sink. See SQLiteStore.Emit on why failures
// are swallowed rather than surfaced.
func (s *MySQLStore) Emit(event progress.Event) {
	payload, _ := json.Marshal(event.Payload)
	_, _ = s.db.ExecContext(context.Background(),
		`INSERT INTO progress_events (conversation_id, invocation_id, seq, owner, node_id, kind, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ConversationID, event.InvocationID, event.Seq, event.Owner, event.NodeID, string(event.Kind), string(payload))
}

// EmitBatch implements progress.Sink.
func (s *MySQLStore) EmitBatch(ctx context.Context, events []progress.Event) error {
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
func (s *MySQLStore) Flush(_ context.Context) error { return nil }

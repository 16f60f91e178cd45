package deepagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Pure-Go sqlite driver, the default for SQLCheckpointStore so the
	// module has no cgo requirement out of the box.
	_ "modernc.org/sqlite"
	// cgo-accelerated sqlite driver, selectable via SQLCheckpointStore's
	// Driver field for deployments that already require cgo.
	_ "github.com/mattn/go-sqlite3"
)

// SQLCheckpointStore is a database/sql-backed CheckpointStore, grounded
// on the teacher's SQL-store shape (internal/sessions/cockroach.go,
// internal/jobs/cockroach.go): one row per key, JSON-serialized payload
// columns.
type SQLCheckpointStore struct {
	db *sql.DB
}

// SQLCheckpointStoreConfig selects the driver and DSN. Driver is either
// "sqlite" (modernc.org/sqlite, pure Go, default) or "sqlite3"
// (mattn/go-sqlite3, cgo).
type SQLCheckpointStoreConfig struct {
	Driver string
	DSN    string
}

// NewSQLCheckpointStore opens db and ensures the checkpoints table
// exists.
func NewSQLCheckpointStore(ctx context.Context, cfg SQLCheckpointStoreConfig) (*SQLCheckpointStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	store := &SQLCheckpointStore{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLCheckpointStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			step INTEGER NOT NULL,
			messages_json TEXT NOT NULL,
			state_json TEXT NOT NULL,
			interrupt_json TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	return err
}

// Save upserts cp, durable once ExecContext returns without error --
// satisfying spec §4.6's "save must be durable before emitting
// checkpoint-saved".
func (s *SQLCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	messagesJSON, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	var interruptJSON []byte
	if cp.Interrupt != nil {
		interruptJSON, err = json.Marshal(cp.Interrupt)
		if err != nil {
			return fmt.Errorf("marshal interrupt: %w", err)
		}
	}
	now := time.Now()
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step, messages_json, state_json, interrupt_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			step = excluded.step,
			messages_json = excluded.messages_json,
			state_json = excluded.state_json,
			interrupt_json = excluded.interrupt_json,
			updated_at = excluded.updated_at
	`, cp.ThreadID, cp.Step, string(messagesJSON), string(stateJSON), nullableString(interruptJSON), cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the latest checkpoint for threadID, or nil if absent.
func (s *SQLCheckpointStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT step, messages_json, state_json, interrupt_json, created_at, updated_at
		FROM checkpoints WHERE thread_id = ?`, threadID)

	var (
		step                        int
		messagesJSON, stateJSON     string
		interruptJSON               sql.NullString
		createdAt, updatedAt        time.Time
	)
	if err := row.Scan(&step, &messagesJSON, &stateJSON, &interruptJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp := &Checkpoint{ThreadID: threadID, Step: step, CreatedAt: createdAt, UpdatedAt: updatedAt}
	if err := json.Unmarshal([]byte(messagesJSON), &cp.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if interruptJSON.Valid && interruptJSON.String != "" {
		cp.Interrupt = &Interrupt{}
		if err := json.Unmarshal([]byte(interruptJSON.String), cp.Interrupt); err != nil {
			return nil, fmt.Errorf("unmarshal interrupt: %w", err)
		}
	}
	return cp, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Close releases the underlying database handle.
func (s *SQLCheckpointStore) Close() error { return s.db.Close() }

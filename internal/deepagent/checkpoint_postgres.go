package deepagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Postgres driver, wired for parity with the pack's heavier
	// deployments (grounded on the teacher's internal/sessions/cockroach.go
	// and internal/jobs/cockroach.go, both lib/pq-backed).
	_ "github.com/lib/pq"
)

// PostgresCheckpointStore is a Postgres-backed CheckpointStore, sharing
// SQLCheckpointStore's schema but using $n placeholders and an UPSERT
// matching Postgres's ON CONFLICT syntax.
type PostgresCheckpointStore struct {
	db *sql.DB
}

// NewPostgresCheckpointStore opens db via lib/pq and ensures the table.
func NewPostgresCheckpointStore(ctx context.Context, dsn string) (*PostgresCheckpointStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	store := &PostgresCheckpointStore{db: db}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			step INTEGER NOT NULL,
			messages_json JSONB NOT NULL,
			state_json JSONB NOT NULL,
			interrupt_json JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("migrate checkpoints table: %w", err)
	}
	return store, nil
}

func (s *PostgresCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (thread_id) DO UPDATE SET
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

func (s *PostgresCheckpointStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT step, messages_json, state_json, interrupt_json, created_at, updated_at
		FROM checkpoints WHERE thread_id = $1`, threadID)

	var (
		step                    int
		messagesJSON, stateJSON string
		interruptJSON           sql.NullString
		createdAt, updatedAt    time.Time
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

// Close releases the underlying database handle.
func (s *PostgresCheckpointStore) Close() error { return s.db.Close() }

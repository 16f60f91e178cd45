package deepagent

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockCheckpointStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLCheckpointStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock, &SQLCheckpointStore{db: db}
}

func TestSQLCheckpointStoreSave(t *testing.T) {
	_, mock, store := setupMockCheckpointStore(t)

	cp := &Checkpoint{
		ThreadID: "t1",
		Step:     3,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		State:    NewState(),
	}

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("t1", 3, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Save(context.Background(), cp); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if cp.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLCheckpointStoreSaveExecError(t *testing.T) {
	_, mock, store := setupMockCheckpointStore(t)

	mock.ExpectExec("INSERT INTO checkpoints").WillReturnError(errors.New("disk full"))

	cp := &Checkpoint{ThreadID: "t1", Step: 1, State: NewState()}
	if err := store.Save(context.Background(), cp); err == nil {
		t.Fatal("expected error from failed exec")
	}
}

func TestSQLCheckpointStoreLoadFound(t *testing.T) {
	_, mock, store := setupMockCheckpointStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"step", "messages_json", "state_json", "interrupt_json", "created_at", "updated_at"}).
		AddRow(5, `[{"role":"user","content":"hi"}]`, `{"todos":[],"files":{}}`, nil, now, now)

	mock.ExpectQuery("SELECT step, messages_json, state_json, interrupt_json, created_at, updated_at").
		WithArgs("t1").
		WillReturnRows(rows)

	cp, err := store.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cp == nil {
		t.Fatal("expected non-nil checkpoint")
	}
	if cp.Step != 5 {
		t.Errorf("Step = %d, want 5", cp.Step)
	}
	if len(cp.Messages) != 1 || cp.Messages[0].Content != "hi" {
		t.Errorf("unexpected messages: %+v", cp.Messages)
	}
	if cp.Interrupt != nil {
		t.Error("expected nil interrupt")
	}
}

func TestSQLCheckpointStoreLoadNotFound(t *testing.T) {
	_, mock, store := setupMockCheckpointStore(t)

	mock.ExpectQuery("SELECT step, messages_json, state_json, interrupt_json, created_at, updated_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	cp, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if cp != nil {
		t.Error("expected nil checkpoint for missing thread")
	}
}

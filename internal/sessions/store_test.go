package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/deskagent/core/internal/coreerrors"
	"github.com/deskagent/core/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, nil), mock
}

func TestCreateSessionSetsActiveKey(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO user_sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	key, err := store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if key == "" {
		t.Fatal("empty session key")
	}
	if store.ActiveKey() != key {
		t.Errorf("active key = %q, want %q", store.ActiveKey(), key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResetForksNewSession(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO user_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_sessions").WillReturnResult(sqlmock.NewResult(2, 1))

	first, err := store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := store.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if first == second {
		t.Error("reset must fork a new session key")
	}
	if store.ActiveKey() != second {
		t.Errorf("active key = %q, want %q", store.ActiveKey(), second)
	}
}

func TestSaveMessageUpdatesCounters(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM user_sessions WHERE session_key").
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO session_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE user_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveMessage(context.Background(), "key-1", models.RoleUser, "hello", false, 12)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveMessageUnknownSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM user_sessions WHERE session_key").
		WithArgs("missing").
		WillReturnError(errors.New("no rows"))
	mock.ExpectRollback()

	err := store.SaveMessage(context.Background(), "missing", models.RoleUser, "x", false, 1)
	if !errors.Is(err, coreerrors.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
}

func TestCleanupOldImagesOnlyTargetsImageRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM session_messages").
		WithArgs("key-1", "key-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.CleanupOldImages(context.Background(), "key-1", 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteOldSessionsCascades(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM session_messages WHERE session_id IN").
		WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectExec("DELETE FROM user_sessions WHERE last_active_at").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	removed, err := store.DeleteOldSessions(context.Background(), 30)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestLoadMessages(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "message_type", "content", "has_image", "token_count", "created_at"}).
		AddRow(int64(1), int64(7), "user", "open settings", 0, 4, created).
		AddRow(int64(2), int64(7), "assistant", "{\"thought\":\"...\"}", 1, 90, created)
	mock.ExpectQuery("SELECT m.id, m.session_id").
		WithArgs("key-1").
		WillReturnRows(rows)

	msgs, err := store.LoadMessages(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].HasImage {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAssistant || !msgs[1].HasImage {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT u.message_count, u.total_tokens").
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"message_count", "total_tokens", "image_count", "estimated"}).
			AddRow(20, 4000, 3, 950))

	stats, err := store.Stats(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.MessageCount != 20 || stats.ImageCount != 3 || stats.EstimatedTokens != 950 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMaintenanceSwallowsFailures(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("disk full"))

	m := NewMaintenance(store, DefaultMaintenanceConfig(), nil)
	// Must not panic or propagate.
	m.RunOnce(context.Background())
}

// Package sessions implements the persistent session store: long-lived
// conversation identities, their message history, image pruning, and
// retention cleanup, backed by an embedded SQL database.
package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskagent/core/internal/coreerrors"
	"github.com/deskagent/core/pkg/models"
)

// Defaults for the store's retention knobs.
const (
	DefaultKeepImages    = 10
	DefaultRetentionDays = 30
)

const schema = `
CREATE TABLE IF NOT EXISTS user_sessions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key    TEXT NOT NULL UNIQUE,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	last_active_at TIMESTAMP NOT NULL,
	message_count  INTEGER NOT NULL DEFAULT 0,
	total_tokens   INTEGER NOT NULL DEFAULT 0,
	metadata       TEXT
);

CREATE TABLE IF NOT EXISTS session_messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   INTEGER NOT NULL REFERENCES user_sessions(id) ON DELETE CASCADE,
	message_type TEXT NOT NULL,
	content      TEXT NOT NULL,
	has_image    INTEGER NOT NULL DEFAULT 0,
	token_count  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_messages_session
	ON session_messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_user_sessions_last_active
	ON user_sessions(last_active_at);
`

// Store persists sessions and their messages. Writes are serialized per
// session key by a SessionLocker; reads run unlocked against a snapshot.
type Store struct {
	db     *sql.DB
	locker *SessionLocker
	logger *slog.Logger

	mu        sync.Mutex
	activeKey string
}

// NewStore wraps an open database handle. Call InitSchema before first
// use on a fresh database file.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		locker: NewSessionLocker(0),
		logger: logger,
	}
}

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

// InitSchema creates the tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: init schema: %v", coreerrors.ErrPersistence, err)
	}
	return nil
}

// CreateSession inserts a new session row and makes it the process's
// active session. Returns the new session key.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	key := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (session_key, created_at, updated_at, last_active_at, message_count, total_tokens)
		 VALUES (?, ?, ?, ?, 0, 0)`,
		key, now, now, now)
	if err != nil {
		return "", fmt.Errorf("%w: create session: %v", coreerrors.ErrPersistence, err)
	}

	s.mu.Lock()
	s.activeKey = key
	s.mu.Unlock()

	s.logger.Info("session created", slog.String("session_key", key))
	return key, nil
}

// ActiveKey returns the process's active session key, or "" when none
// has been created yet.
func (s *Store) ActiveKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

// Reset forks a fresh session: the old one stays on disk, a new key
// becomes active.
func (s *Store) Reset(ctx context.Context) (string, error) {
	return s.CreateSession(ctx)
}

// SaveMessage appends one message to the session and bumps its rolling
// counters, under the session's write lock.
func (s *Store) SaveMessage(ctx context.Context, sessionKey string, role models.MessageRole, content string, hasImage bool, tokenCount int) error {
	if err := s.locker.LockWithContext(ctx, sessionKey); err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrPersistence, err)
	}
	defer s.locker.Unlock(sessionKey)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", coreerrors.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	var sessionID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM user_sessions WHERE session_key = ?`, sessionKey).Scan(&sessionID); err != nil {
		return fmt.Errorf("%w: lookup session %s: %v", coreerrors.ErrPersistence, sessionKey, err)
	}

	now := time.Now().UTC()
	imageFlag := 0
	if hasImage {
		imageFlag = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, message_type, content, has_image, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, string(role), content, imageFlag, tokenCount, now); err != nil {
		return fmt.Errorf("%w: insert message: %v", coreerrors.ErrPersistence, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_sessions
		 SET message_count = message_count + 1,
		     total_tokens = total_tokens + ?,
		     updated_at = ?, last_active_at = ?
		 WHERE id = ?`,
		tokenCount, now, now, sessionID); err != nil {
		return fmt.Errorf("%w: update counters: %v", coreerrors.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", coreerrors.ErrPersistence, err)
	}
	return nil
}

// LoadMessages returns the session's full message history in insertion
// order.
func (s *Store) LoadMessages(ctx context.Context, sessionKey string) ([]models.SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.session_id, m.message_type, m.content, m.has_image, m.token_count, m.created_at
		 FROM session_messages m
		 JOIN user_sessions u ON u.id = m.session_id
		 WHERE u.session_key = ?
		 ORDER BY m.id`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", coreerrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.SessionMessage
	for rows.Next() {
		var m models.SessionMessage
		var role string
		var hasImage int
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &hasImage, &m.TokenCount, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", coreerrors.ErrPersistence, err)
		}
		m.Role = models.MessageRole(role)
		m.HasImage = hasImage != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", coreerrors.ErrPersistence, err)
	}
	return out, nil
}

// DeleteOldSessions removes sessions whose last_active_at is older than
// the retention window, along with their messages. Returns the number of
// sessions removed.
func (s *Store) DeleteOldSessions(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", coreerrors.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Explicit cascade: the embedded driver may run without
	// foreign_keys enabled.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id IN
		 (SELECT id FROM user_sessions WHERE last_active_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("%w: delete old messages: %v", coreerrors.ErrPersistence, err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: delete old sessions: %v", coreerrors.ErrPersistence, err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", coreerrors.ErrPersistence, err)
	}
	return removed, nil
}

// CleanupOldImages deletes image-bearing message rows outside the most
// recent keepLastN such rows, preserving every text turn. Returns the
// number of rows removed.
func (s *Store) CleanupOldImages(ctx context.Context, sessionKey string, keepLastN int) (int64, error) {
	if err := s.locker.LockWithContext(ctx, sessionKey); err != nil {
		return 0, fmt.Errorf("%w: %v", coreerrors.ErrPersistence, err)
	}
	defer s.locker.Unlock(sessionKey)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_messages
		 WHERE has_image = 1
		   AND session_id = (SELECT id FROM user_sessions WHERE session_key = ?)
		   AND id NOT IN (
		     SELECT m.id FROM session_messages m
		     JOIN user_sessions u ON u.id = m.session_id
		     WHERE u.session_key = ? AND m.has_image = 1
		     ORDER BY m.id DESC LIMIT ?
		   )`,
		sessionKey, sessionKey, keepLastN)
	if err != nil {
		return 0, fmt.Errorf("%w: cleanup images: %v", coreerrors.ErrPersistence, err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

// Stats summarizes one session's stored size.
func (s *Store) Stats(ctx context.Context, sessionKey string) (*models.SessionStats, error) {
	stats := &models.SessionStats{SessionKey: sessionKey}
	err := s.db.QueryRowContext(ctx,
		`SELECT u.message_count, u.total_tokens,
		        (SELECT COUNT(*) FROM session_messages m WHERE m.session_id = u.id AND m.has_image = 1),
		        (SELECT COALESCE(SUM(LENGTH(m.content)), 0) / 4 FROM session_messages m WHERE m.session_id = u.id)
		 FROM user_sessions u WHERE u.session_key = ?`, sessionKey).
		Scan(&stats.MessageCount, &stats.TotalTokens, &stats.ImageCount, &stats.EstimatedTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", coreerrors.ErrPersistence, err)
	}
	return stats, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_key, created_at, updated_at, last_active_at, message_count, total_tokens, COALESCE(metadata, '')
		 FROM user_sessions ORDER BY last_active_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", coreerrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.SessionKey, &sess.CreatedAt, &sess.UpdatedAt,
			&sess.LastActiveAt, &sess.MessageCount, &sess.TotalTokens, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", coreerrors.ErrPersistence, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/pavelanni/saq/internal/model"
)

// Lazy users keep their session far longer than password users: losing the
// cookie means losing the answers.
const (
	authSessionTTL     = 24 * time.Hour
	lazyAuthSessionTTL = 365 * 24 * time.Hour
)

// CreateAuthSession creates a new session token for a user.
func (s *Store) CreateAuthSession(user *model.User) (string, time.Time, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	ttl := authSessionTTL
	if user.Lazy {
		ttl = lazyAuthSessionTTL
	}
	now := time.Now()
	expires := now.Add(ttl)
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, user.ID, now, expires,
	)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// UserForSession resolves a session token to its active user. It returns nil
// for unknown or expired tokens and for deactivated users; expired sessions
// are deleted on sight.
func (s *Store) UserForSession(token string) (*model.User, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	user, err := s.GetUserByID(sess.UserID)
	if err != nil || user == nil || !user.Active {
		return nil, err
	}
	return user, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired auth sessions.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

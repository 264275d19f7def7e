// Package auth exposes the optional identity of the signed-in user.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// EnvUserID overrides any session file when set.
const EnvUserID = "MIA_USER_ID"

// Provider returns the current user identifier, if a session exists.
type Provider interface {
	CurrentUser(ctx context.Context) (string, bool)
}

// Session is the on-disk shape of the session file.
type Session struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FileProvider reads the session file written by the sign-in flow.
type FileProvider struct {
	Path string
	Now  func() time.Time
}

// NewFileProvider returns a provider backed by path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path, Now: time.Now}
}

// CurrentUser implements Provider. Missing, unreadable, or expired sessions are absent.
func (p *FileProvider) CurrentUser(_ context.Context) (string, bool) {
	if value, ok := os.LookupEnv(EnvUserID); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), true
	}
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return "", false
	}
	session, err := ReadSession(p.Path)
	if err != nil {
		return "", false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if !session.ExpiresAt.IsZero() && !now().Before(session.ExpiresAt) {
		return "", false
	}
	if session.UserID == "" {
		return "", false
	}
	return session.UserID, true
}

// ReadSession parses the session file at path.
func ReadSession(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, fmt.Errorf("no session: %w", err)
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	session.UserID = strings.TrimSpace(session.UserID)
	return session, nil
}

// Static is a fixed identity, mostly useful in tests.
type Static string

// CurrentUser implements Provider.
func (s Static) CurrentUser(context.Context) (string, bool) {
	return string(s), s != ""
}

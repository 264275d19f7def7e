package auth_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mia/internal/auth"
)

func writeSession(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write session: %v", err)
	}
	return path
}

func TestFileProvider(t *testing.T) {
	t.Setenv(auth.EnvUserID, "")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		body   string
		wantID string
		wantOK bool
	}{
		{name: "valid", body: `{"user_id":"user-42","expires_at":"2026-03-02T00:00:00Z"}`, wantID: "user-42", wantOK: true},
		{name: "no expiry", body: `{"user_id":" user-7 "}`, wantID: "user-7", wantOK: true},
		{name: "expired", body: `{"user_id":"user-42","expires_at":"2026-03-01T00:00:00Z"}`},
		{name: "empty id", body: `{"user_id":""}`},
		{name: "garbage", body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auth.NewFileProvider(writeSession(t, tt.body))
			p.Now = func() time.Time { return now }
			id, ok := p.CurrentUser(context.Background())
			if id != tt.wantID || ok != tt.wantOK {
				t.Fatalf("CurrentUser = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	t.Setenv(auth.EnvUserID, "")
	p := auth.NewFileProvider(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok := p.CurrentUser(context.Background()); ok {
		t.Fatal("expected no user without a session file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(auth.EnvUserID, "env-user")
	p := auth.NewFileProvider(writeSession(t, `{"user_id":"file-user"}`))
	if id, ok := p.CurrentUser(context.Background()); !ok || id != "env-user" {
		t.Fatalf("expected env override, got %q %v", id, ok)
	}
}

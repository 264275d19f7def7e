package testsupport

import (
	"testing"

	"mia/internal/config"
	"mia/internal/statestore"
)

// MustOpenStore opens the state store and registers cleanup on test completion.
func MustOpenStore(t testing.TB, cfg *config.Config) *statestore.Store {
	t.Helper()

	store, err := statestore.Open(cfg)
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

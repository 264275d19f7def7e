package permission

import (
	"context"
	"fmt"

	"mia/internal/statestore"
)

// Status is the queryable microphone permission state.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusPrompt  Status = "prompt"
)

// Record persists the consent outcome.
type Record interface {
	Status(ctx context.Context) (Status, error)
	Grant(ctx context.Context) error
}

// Grants stores the consent outcome under statestore.KeyMicrophoneGrant.
type Grants struct {
	store *statestore.Store
}

// NewGrants wraps store.
func NewGrants(store *statestore.Store) *Grants {
	return &Grants{store: store}
}

// Status reports the recorded permission. An absent record means prompt.
func (g *Grants) Status(ctx context.Context) (Status, error) {
	entry, ok, err := g.store.Get(ctx, statestore.KeyMicrophoneGrant)
	if err != nil {
		return StatusPrompt, fmt.Errorf("read microphone grant: %w", err)
	}
	if !ok {
		return StatusPrompt, nil
	}
	switch Status(entry.Value) {
	case StatusGranted, StatusDenied:
		return Status(entry.Value), nil
	default:
		return StatusPrompt, nil
	}
}

// Grant records consent.
func (g *Grants) Grant(ctx context.Context) error {
	return g.store.Set(ctx, statestore.KeyMicrophoneGrant, string(StatusGranted))
}

// Deny records an outright denial. The gate will not prompt again until Reset.
func (g *Grants) Deny(ctx context.Context) error {
	return g.store.Set(ctx, statestore.KeyMicrophoneGrant, string(StatusDenied))
}

// Reset clears the record so the next gate prompts again.
func (g *Grants) Reset(ctx context.Context) error {
	return g.store.Delete(ctx, statestore.KeyMicrophoneGrant)
}

// MicrophoneGranted implements media.ConsentChecker.
func (g *Grants) MicrophoneGranted(ctx context.Context) (bool, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return false, err
	}
	return status == StatusGranted, nil
}

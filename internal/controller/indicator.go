package controller

import (
	"context"

	"mia/internal/statestore"
)

// Badge texts.
const (
	BadgeRecording = "REC"
	BadgeIdle      = ""
)

// StoreIndicator keeps the badge in the state store for status surfaces.
type StoreIndicator struct {
	Store *statestore.Store
}

// SetRecording implements Indicator.
func (i StoreIndicator) SetRecording(ctx context.Context, recording bool) error {
	if recording {
		return i.Store.Set(ctx, statestore.KeyUIBadge, BadgeRecording)
	}
	return i.Store.Delete(ctx, statestore.KeyUIBadge)
}

// Badge reads the current badge text.
func Badge(ctx context.Context, store *statestore.Store) (string, error) {
	entry, ok, err := store.Get(ctx, statestore.KeyUIBadge)
	if err != nil || !ok {
		return BadgeIdle, err
	}
	return entry.Value, nil
}

package storage

import (
	"context"
	"fmt"

	"NewsDigest/internal/ports"
)

// Memoize returns the stored payload for key or calls fetch and persists its result first.
// Entries never expire. A nil store always fetches.
func Memoize(ctx context.Context, store ports.BackupStore, key string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if store == nil {
		return fetch(ctx)
	}

	payload, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("backup lookup: %w", err)
	}
	if ok {
		return payload, nil
	}

	payload, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("backup save: %w", err)
	}
	return payload, nil
}

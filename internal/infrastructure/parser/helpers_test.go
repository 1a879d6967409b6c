package parser

import (
	"context"
	"sync"
	"testing"
	"time"

	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.entries[key]
	return payload, ok, nil
}

func (m *memStore) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = payload
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func testClient() *web.Client {
	return web.NewClient(web.Options{Retry: resilience.Policy{Attempts: 1}}, nil)
}

func mustWindow(t *testing.T, since, until time.Time) scanner.Window {
	t.Helper()
	w, err := scanner.NewWindow(since, until)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

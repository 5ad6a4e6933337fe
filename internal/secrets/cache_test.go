package secrets

import (
	"context"
	"testing"

	"github.com/nlbuilder/agentd/internal/store"
)

func newTestCache(t *testing.T) (*Cache, Manager) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	manager := NewMemoryManager()
	cache, err := NewCache(manager, st, make([]byte, 32))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache, manager
}

func TestCache_FallsThroughToManagerOnMiss(t *testing.T) {
	cache, manager := newTestCache(t)
	manager.SetSecret(context.Background(), "openai_key", "sk-test-value")

	s, err := cache.Get(context.Background(), "openai_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Unsecure() != "sk-test-value" {
		t.Errorf("got %q, want sk-test-value", s.Unsecure())
	}
}

func TestCache_SecondGetHitsMemoryWithoutManager(t *testing.T) {
	cache, manager := newTestCache(t)
	manager.SetSecret(context.Background(), "key", "value-1")

	if _, err := cache.Get(context.Background(), "key"); err != nil {
		t.Fatalf("first get: %v", err)
	}

	// Changing the manager's value should not affect the cached read.
	manager.SetSecret(context.Background(), "key", "value-2")
	s, err := cache.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if s.Unsecure() != "value-1" {
		t.Errorf("got %q, want cached value-1", s.Unsecure())
	}
}

func TestCache_PreloadFetchesAllKeys(t *testing.T) {
	cache, manager := newTestCache(t)
	manager.SetSecret(context.Background(), "a", "1")
	manager.SetSecret(context.Background(), "b", "2")

	if err := cache.Preload(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	if len(cache.memory) != 2 {
		t.Errorf("expected 2 preloaded secrets, got %d", len(cache.memory))
	}
}

func TestCache_InvalidateRemovesFromMemory(t *testing.T) {
	cache, manager := newTestCache(t)
	manager.SetSecret(context.Background(), "key", "value")

	if _, err := cache.Get(context.Background(), "key"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Invalidate(context.Background(), "key")

	cache.mu.RLock()
	_, ok := cache.memory["key"]
	cache.mu.RUnlock()
	if ok {
		t.Error("expected key to be removed from memory cache")
	}
}

func TestCache_EncryptDecryptRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	plain := []byte("round-trip-value")

	enc, err := cache.encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := cache.decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(dec) != string(plain) {
		t.Errorf("decrypt(encrypt(x)) = %q, want %q", dec, plain)
	}
}

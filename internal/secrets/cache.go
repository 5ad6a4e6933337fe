package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nlbuilder/agentd/internal/store"
)

var ErrShortCiphertext = errors.New("secrets: ciphertext shorter than the nonce")

// Cache is a read-through cache in front of a keychain Manager (spec.md
// §4.9), mirroring the original's SecretCache (in-memory RwLock<HashMap>
// over a SecretManager) but adding a second, SQLite-persisted layer backed
// by store.Store's secrets_cache table, so a warm cache survives a restart
// without another keychain prompt. Values are encrypted at rest with
// AES-256-GCM; the key lives only in the running process.
type Cache struct {
	mu      sync.RWMutex
	memory  map[string]*Secret
	manager Manager
	store   *store.Store
	gcm     cipher.AEAD
}

// NewCache builds a Cache. encryptionKey must be 16, 24, or 32 bytes (AES-128/192/256).
func NewCache(manager Manager, st *store.Store, encryptionKey []byte) (*Cache, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: build cache cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: build cache cipher: %w", err)
	}
	return &Cache{
		memory:  make(map[string]*Secret),
		manager: manager,
		store:   st,
		gcm:     gcm,
	}, nil
}

// Get returns the secret for key, checking the in-memory cache, then the
// persisted cache, then falling through to the keychain Manager and
// backfilling both layers.
func (c *Cache) Get(ctx context.Context, key string) (*Secret, error) {
	c.mu.RLock()
	if s, ok := c.memory[key]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	if raw, _, err := c.store.GetSecret(ctx, key); err == nil {
		if plain, decErr := c.decrypt(raw); decErr == nil {
			s := NewSecret(string(plain))
			c.remember(key, s)
			return s, nil
		}
	}

	value, err := c.manager.GetSecret(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("secrets: fetch %q: %w", key, err)
	}
	s := NewSecret(value)

	if enc, encErr := c.encrypt([]byte(value)); encErr == nil {
		_ = c.store.PutSecret(ctx, key, enc, nil, time.Now().Unix())
	}

	c.remember(key, s)
	return s, nil
}

// Preload fetches every key up front, so any interactive keychain prompt
// happens once at startup rather than mid-task.
func (c *Cache) Preload(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if _, err := c.Get(ctx, k); err != nil {
			return fmt.Errorf("secrets: preload %q: %w", k, err)
		}
	}
	return nil
}

// Invalidate drops a key from both cache layers, releasing its Secret.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	if s, ok := c.memory[key]; ok {
		s.Release()
		delete(c.memory, key)
	}
	c.mu.Unlock()
	_ = c.store.DeleteSecret(ctx, key)
}

func (c *Cache) remember(key string, s *Secret) {
	c.mu.Lock()
	c.memory[key] = s
	c.mu.Unlock()
}

func (c *Cache) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plain, nil), nil
}

func (c *Cache) decrypt(data []byte) ([]byte, error) {
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return nil, ErrShortCiphertext
	}
	nonce, ciphertext := data[:ns], data[ns:]
	return c.gcm.Open(nil, nonce, ciphertext, nil)
}

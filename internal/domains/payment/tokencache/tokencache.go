// Package tokencache keeps the gateway bearer token for a session encrypted
// at rest in the shared cache.
package tokencache

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"paysync-backend/pkg/cache"
	"paysync-backend/pkg/logger"
)

const keyInfo = "paysync gateway token cache v1"

// entry is the stored shape of a cached token.
type entry struct {
	Ciphertext []byte    `json:"ciphertext"`
	IV         []byte    `json:"iv"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type TokenCache struct {
	store cache.Cache
	aead  cipher.AEAD
	now   func() time.Time
}

// New derives the encryption key from secret. secret must not be empty.
func New(store cache.Cache, secret string) (*TokenCache, error) {
	if secret == "" {
		return nil, errors.New("token cache secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token cache key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}

	return &TokenCache{store: store, aead: aead, now: time.Now}, nil
}

// WithClock replaces the time source.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

func cacheKey(sessionID string) string {
	return "gateway_token:" + sessionID
}

// Get returns the cached token for sessionID. Expired or undecryptable
// entries are cleared and reported as a miss.
func (c *TokenCache) Get(ctx context.Context, sessionID string) (string, bool) {
	var e entry
	found, err := c.store.Get(ctx, cacheKey(sessionID), &e)
	if err != nil {
		logger.Error("token cache read failed", err)
		c.clearQuietly(ctx, sessionID)
		return "", false
	}
	if !found {
		return "", false
	}

	if e.ExpiresAt.Sub(c.now()) <= 0 {
		c.clearQuietly(ctx, sessionID)
		return "", false
	}

	// Open panics on a nonce of the wrong size
	if len(e.IV) != c.aead.NonceSize() {
		c.clearQuietly(ctx, sessionID)
		return "", false
	}
	plain, err := c.aead.Open(nil, e.IV, e.Ciphertext, []byte(sessionID))
	if err != nil {
		c.clearQuietly(ctx, sessionID)
		return "", false
	}
	return string(plain), true
}

// Save encrypts token under a fresh IV and stores it until now()+ttl.
func (c *TokenCache) Save(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("token ttl must be positive")
	}

	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("generate token iv: %w", err)
	}

	e := entry{
		Ciphertext: c.aead.Seal(nil, iv, []byte(token), []byte(sessionID)),
		IV:         iv,
		ExpiresAt:  c.now().Add(ttl),
	}
	if err := c.store.Set(ctx, cacheKey(sessionID), e, ttl); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Clear removes the cached token for sessionID.
func (c *TokenCache) Clear(ctx context.Context, sessionID string) error {
	return c.store.Delete(ctx, cacheKey(sessionID))
}

func (c *TokenCache) clearQuietly(ctx context.Context, sessionID string) {
	if err := c.Clear(ctx, sessionID); err != nil {
		logger.Error("token cache clear failed", err)
	}
}

// Package auth guards the harness API with operator API keys. Keys are kept
// only as bcrypt hashes.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidKey = errors.New("invalid API key")
	ErrMissingKey = errors.New("missing API key")
)

// KeyInfo describes a registered key without revealing it.
type KeyInfo struct {
	Name      string
	CreatedAt time.Time
	hash      []byte
}

// KeyStore holds the hashed operator keys
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyInfo
	cost int
}

// NewKeyStore creates an empty key store. cost is the bcrypt cost;
// values outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewKeyStore(cost int) *KeyStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &KeyStore{keys: make(map[string]*KeyInfo), cost: cost}
}

// Add registers key under name, replacing any key with the same name.
func (ks *KeyStore) Add(name, key string) error {
	if key == "" {
		return ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), ks.cost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[name] = &KeyInfo{Name: name, CreatedAt: time.Now(), hash: hash}
	return nil
}

// Generate creates a random key, registers it under name and returns it.
// The plaintext is not retained.
func (ks *KeyStore) Generate(name string) (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := ks.Add(name, key); err != nil {
		return "", err
	}
	return key, nil
}

// Validate returns the name of the key matching key.
func (ks *KeyStore) Validate(key string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for name, info := range ks.keys {
		if bcrypt.CompareHashAndPassword(info.hash, []byte(key)) == nil {
			return name, nil
		}
	}
	return "", ErrInvalidKey
}

// Revoke removes the key registered under name.
func (ks *KeyStore) Revoke(name string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.keys, name)
}

// Len returns the number of registered keys.
func (ks *KeyStore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// List returns the registered keys without their hashes.
func (ks *KeyStore) List() []KeyInfo {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]KeyInfo, 0, len(ks.keys))
	for _, info := range ks.keys {
		out = append(out, KeyInfo{Name: info.Name, CreatedAt: info.CreatedAt})
	}
	return out
}

// GenerateKey returns 32 random bytes, URL-safe base64 encoded.
func GenerateKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(keyBytes), nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware rejects requests without a valid bearer key. Requests for
// which skip returns true pass through. An empty store disables the check.
func Middleware(ks *KeyStore, skip func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ks.Len() == 0 || (skip != nil && skip(r)) {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := ks.Validate(BearerToken(r)); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="crashloop"`)
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, `{"error":%q}`, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

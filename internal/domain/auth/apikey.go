// Package auth describes API keys and how they are hashed.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Scopes granted to API keys.
const (
	ScopeRead      = "read"
	ScopeCaja      = "caja"
	ScopeInventory = "inventario"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
	Active  bool
}

// Allows reports whether the key grants scope.
func (k *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Writer stores API keys.
type Writer interface {
	SaveAPIKey(ctx context.Context, k APIKeyInfo) error
}

// Sum returns the HMAC-SHA256 of key under pepper.
func Sum(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Hash returns the hex encoded HMAC-SHA256 of key under pepper, as stored.
func Hash(pepper []byte, key string) string {
	return hex.EncodeToString(Sum(pepper, key))
}

type ctxKey struct{}

// WithKey returns a context carrying the authenticated key.
func WithKey(ctx context.Context, k *APIKeyInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, k)
}

// FromContext returns the authenticated key, if any.
func FromContext(ctx context.Context) (*APIKeyInfo, bool) {
	k, ok := ctx.Value(ctxKey{}).(*APIKeyInfo)
	return k, ok
}

// User returns the name recorded as the author of changes made with the
// key in ctx.
func User(ctx context.Context) string {
	if k, ok := FromContext(ctx); ok {
		return k.Name
	}
	return ""
}

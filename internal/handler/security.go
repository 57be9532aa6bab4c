package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/caja/internal/domain/auth"
)

// APIKeyHeader carries the client API key. The legacy api_key header is
// accepted as well.
const APIKeyHeader = "X-API-Key"

// SecurityHandler authenticates requests with HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves the request API key and stores it in the context.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key = r.Header.Get("api_key")
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "api key required")
			return
		}

		info, err := s.verify(r, key)
		switch {
		case errors.Is(err, auth.ErrKeyNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "service unavailable, try again")
			return
		}

		ctx := auth.WithKey(r.Context(), info)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key", info.Name)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *SecurityHandler) verify(r *http.Request, key string) (*auth.APIKeyInfo, error) {
	sum := auth.Sum(s.pepper, key)
	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(sum))
	if err != nil {
		return nil, err
	}

	// Compare against the stored hash in constant time.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 || !info.Active {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// RequireScope rejects requests whose key grants none of scopes.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.ContainsFunc(scopes, info.Allows) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scopes[0])
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

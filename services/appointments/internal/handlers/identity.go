package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sytefy/backend/libs/httpx"
)

type identityKey struct{}

type Identity struct {
	UserID int64
	Email  string
}

// WithIdentity reads the caller forwarded by the gateway. Requests without a
// numeric X-User-Id are rejected.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if raw == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing X-User-Id")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid X-User-Id")
			return
		}
		ident := Identity{UserID: id, Email: strings.TrimSpace(r.Header.Get("X-User-Email"))}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, ident)))
	})
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(Identity)
	return ident, ok
}

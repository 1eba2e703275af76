package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/me/autograde/pkg/model"
)

const ctxKeyIdentity ctxKey = "identity"

// Identity headers set by the authenticating proxy in front of the server.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// IdentityFromContext returns the caller of the request. Requests without
// identity headers are anonymous.
func IdentityFromContext(ctx context.Context) model.Identity {
	if id, ok := ctx.Value(ctxKeyIdentity).(model.Identity); ok {
		return id
	}
	return model.Identity{Role: model.RoleAnonymous}
}

// identityMiddleware reads the pre-authenticated caller from headers.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := model.Identity{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:   model.ParseRole(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
		}
		if id.UserID == "" {
			id.Role = model.RoleAnonymous
		}
		ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects anonymous callers with 401 and callers with another
// role with 403.
func requireRole(roles ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			id := IdentityFromContext(r.Context())

			if id.IsAnonymous() {
				respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
					Code:    model.ErrUnauthorized,
					Message: "authentication required",
				})
				return
			}
			if !slices.Contains(roles, id.Role) {
				respondError(w, reqID, http.StatusForbidden, &model.APIError{
					Code:    model.ErrForbidden,
					Message: "role " + string(id.Role) + " may not access this resource",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

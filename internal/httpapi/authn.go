package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bookshelf.org/internal/apperr"
	"bookshelf.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type principal struct {
	user  auth.User
	roles []string
}

type principalContextKey struct{}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(principal)
	return p, ok
}

// requireUser resolves the bearer token and rejects the request with 401 when
// it is missing or invalid.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="bookshelf"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		u, roles, err := a.auth.CurrentUser(r.Context(), token)
		if err != nil {
			if apperr.Is(err, apperr.Authentication) {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			a.log.ErrorContext(r.Context(), "token authentication failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUserID(r.Context(), u.ID)
		ctx = context.WithValue(ctx, principalContextKey{}, principal{user: u, roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

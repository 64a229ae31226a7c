package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/urbancart/api/internal/domain/auth"
	"github.com/urbancart/api/internal/domain/user"
)

type principalKey struct{}

// principalFrom extracts the authenticated user placed by requireAuth.
func principalFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(principalKey{}).(user.User)
	return u, ok
}

// requireAuth resolves the bearer token to a principal. The raw token is
// hashed with the configured pepper and looked up; raw tokens never reach
// storage or logs.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondErrorMsg(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		u, err := h.tokens.FindUserByTokenHash(r.Context(), auth.HashToken(h.pepper, token))
		if err != nil {
			if errors.Is(err, auth.ErrTokenNotFound) {
				respondErrorMsg(w, http.StatusUnauthorized, "invalid token")
				return
			}
			zctx.From(r.Context()).Error("token lookup", zap.Error(err))
			respondErrorMsg(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, *u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOrderManager gates vendor/admin-only routes.
func (h *Handler) requireOrderManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := principalFrom(r.Context())
		if !ok || !u.Role.CanManageOrders() {
			respondErrorMsg(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/cautela-backend/api/responses"
	"github.com/angelmondragon/cautela-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

// Auth validates the bearer token through the session manager and seeds the
// request context with the resulting principal.
func Auth(verifier session.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session verifier unavailable"))
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, sessionError(err))
				return
			}

			ctx := WithPrincipal(r.Context(), principal, token)
			if logg != nil {
				ctx = logg.WithOperatorID(ctx, principal.OperatorID.String())
				ctx = logg.WithActorRole(ctx, string(principal.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = raw[7:]
	}
	return strings.TrimSpace(raw)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrExpired):
		return pkgerrors.Wrap(pkgerrors.CodeTokenExpired, err, "session expired")
	case errors.Is(err, session.ErrRevoked):
		return pkgerrors.Wrap(pkgerrors.CodeTokenRevoked, err, "session revoked")
	case errors.Is(err, session.ErrAccountDisabled):
		return pkgerrors.Wrap(pkgerrors.CodeAccountDisabled, err, "operator account disabled")
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrOperatorNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
}

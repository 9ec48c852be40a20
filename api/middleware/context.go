package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/auth/session"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxToken     contextKey = "access_token"
)

// WithPrincipal stores the verified session principal and its raw token.
func WithPrincipal(ctx context.Context, principal *session.Principal, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPrincipal, principal)
	return context.WithValue(ctx, ctxToken, token)
}

func PrincipalFromContext(ctx context.Context) *session.Principal {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxPrincipal).(*session.Principal); ok {
		return v
	}
	return nil
}

func OperatorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	principal := PrincipalFromContext(ctx)
	if principal == nil || principal.OperatorID == uuid.Nil {
		return uuid.Nil, false
	}
	return principal.OperatorID, true
}

func RoleFromContext(ctx context.Context) enums.OperatorRole {
	if principal := PrincipalFromContext(ctx); principal != nil {
		return principal.Role
	}
	return ""
}

// TokenFromContext returns the bearer token that authenticated the request.
func TokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxToken).(string); ok {
		return v
	}
	return ""
}

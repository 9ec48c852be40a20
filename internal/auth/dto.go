package auth

import (
	"time"

	"github.com/angelmondragon/cautela-backend/internal/operators"
)

// LoginRequest captures the operator credentials sent to the login endpoint.
// Login accepts either the username or the email address.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the bearer token and the authenticated operator.
type LoginResponse struct {
	AccessToken string                 `json:"access_token"`
	TokenType   string                 `json:"token_type"`
	ExpiresAt   time.Time              `json:"expires_at"`
	Operator    *operators.OperatorDTO `json:"operator"`
}

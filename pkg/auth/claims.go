package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// ErrClaimsMismatch means the token is well signed but its operator claims
// disagree with each other.
var ErrClaimsMismatch = errors.New("access token claims are inconsistent")

// AccessTokenPayload is what the session manager knows when it opens a session.
type AccessTokenPayload struct {
	OperatorID uuid.UUID
	Role       enums.OperatorRole
	JTI        string
}

// AccessTokenClaims is the body of an operator bearer token. The registered
// ID (jti) is the session id used for revocation.
type AccessTokenClaims struct {
	OperatorID uuid.UUID          `json:"operator_id"`
	Role       enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.OperatorID == uuid.Nil || c.Subject != c.OperatorID.String() {
		return fmt.Errorf("%w: subject %q", ErrClaimsMismatch, c.Subject)
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w: role %q", ErrClaimsMismatch, c.Role)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrClaimsMismatch)
	}
	return nil
}

package operators

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// OperatorDTO is the transport shape that omits credentials.
type OperatorDTO struct {
	ID          uuid.UUID          `json:"id"`
	Username    string             `json:"username"`
	Email       string             `json:"email"`
	FullName    *string            `json:"full_name,omitempty"`
	Role        enums.OperatorRole `json:"role"`
	IsActive    bool               `json:"is_active"`
	LastLoginAt *time.Time         `json:"last_login_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`

	// TemporaryPassword is set only on the create response when the admin
	// left the password blank.
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// OperatorList wraps a page of operators.
type OperatorList struct {
	Operators  []OperatorDTO `json:"operators"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// CreateOperatorDTO holds the data required by the repo to persist an operator.
type CreateOperatorDTO struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     *string
	Role         enums.OperatorRole
}

// CreateOperatorInput is the admin request to open an account.
type CreateOperatorInput struct {
	Username string
	Email    string
	Password string
	FullName *string
	Role     *enums.OperatorRole
}

// UpdateOperatorInput carries the optional fields an admin may change.
type UpdateOperatorInput struct {
	Email    *string
	FullName *string
	Role     *enums.OperatorRole
	IsActive *bool
}

func FromModel(o *models.Operator) *OperatorDTO {
	if o == nil {
		return nil
	}
	return &OperatorDTO{
		ID:          o.ID,
		Username:    o.Username,
		Email:       o.Email,
		FullName:    o.FullName,
		Role:        o.Role,
		IsActive:    o.IsActive,
		LastLoginAt: o.LastLoginAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func (c CreateOperatorDTO) ToModel() *models.Operator {
	role := c.Role
	if !role.IsValid() {
		role = enums.OperatorRoleOperator
	}
	return &models.Operator{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(c.Username),
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash: c.PasswordHash,
		FullName:     c.FullName,
		Role:         role,
		IsActive:     true,
	}
}

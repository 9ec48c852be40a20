package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// Operator represents a back-office account allowed to manage custody records.
type Operator struct {
	ID           uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username     string             `gorm:"column:username;type:text;not null;uniqueIndex"`
	Email        string             `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string             `gorm:"column:password_hash;not null"`
	FullName     *string            `gorm:"column:full_name"`
	Role         enums.OperatorRole `gorm:"column:role;type:operator_role;not null;default:'operator'"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time         `gorm:"column:last_login_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

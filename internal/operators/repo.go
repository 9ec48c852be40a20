package operators

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/internal/repo"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
)

// Repository exposes operator persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs an operators repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a new operator and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateOperatorDTO) (*models.Operator, error) {
	operator := dto.ToModel()
	if err := r.DB(ctx).Create(operator).Error; err != nil {
		return nil, err
	}
	return operator, nil
}

// FindByLogin matches the identifier against username or email, ignoring case.
func (r *Repository) FindByLogin(ctx context.Context, identifier string) (*models.Operator, error) {
	value := strings.ToLower(strings.TrimSpace(identifier))
	var operator models.Operator
	err := r.DB(ctx).
		Where("lower(username) = ? OR lower(email) = ?", value, value).
		First(&operator).Error
	if err != nil {
		return nil, err
	}
	return &operator, nil
}

// FindByID loads an operator by UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	var operator models.Operator
	if err := r.DB(ctx).First(&operator, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &operator, nil
}

// List returns operators oldest first plus the next page cursor.
func (r *Repository) List(ctx context.Context, params pagination.Params) ([]models.Operator, string, error) {
	query, err := pagination.Keyset(r.DB(ctx).Model(&models.Operator{}), params, pagination.OldestFirst)
	if err != nil {
		return nil, "", err
	}
	var rows []models.Operator
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(rows, params.Limit, func(op models.Operator) pagination.Cursor {
		return pagination.Cursor{CreatedAt: op.CreatedAt, ID: op.ID}
	})
	return page, next, nil
}

// Update applies a partial update to the operator row.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.DB(ctx).
		Model(&models.Operator{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdatePassword replaces the stored password digest.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.Update(ctx, id, map[string]any{"password_hash": hash})
}

// UpdateLastLogin refreshes the operator's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Operator{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

package operators

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	dbpkg "github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
	"github.com/angelmondragon/cautela-backend/pkg/security"
)

const (
	minUsernameLength  = 3
	tempPasswordLength = 14

	uxOperatorsUsername = "ux_operators_username"
	uxOperatorsEmail    = "ux_operators_email"
)

type operatorStore interface {
	Create(ctx context.Context, dto CreateOperatorDTO) (*models.Operator, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Operator, error)
	List(ctx context.Context, params pagination.Params) ([]models.Operator, string, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// Service manages operator accounts on behalf of admins.
type Service interface {
	List(ctx context.Context, params pagination.Params) (*OperatorList, error)
	Get(ctx context.Context, id uuid.UUID) (*OperatorDTO, error)
	Create(ctx context.Context, input CreateOperatorInput) (*OperatorDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateOperatorInput) (*OperatorDTO, error)
	SetPassword(ctx context.Context, id uuid.UUID, password string) error
}

type service struct {
	repo     operatorStore
	password config.PasswordConfig
}

// NewService builds the operator administration service.
func NewService(repo operatorStore, passwordCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("operators repository required")
	}
	return &service{repo: repo, password: passwordCfg}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*OperatorList, error) {
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		if _, cursorErr := pagination.ParseCursor(params.Cursor); cursorErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, cursorErr, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list operators")
	}
	list := &OperatorList{
		Operators:  make([]OperatorDTO, 0, len(rows)),
		NextCursor: next,
	}
	for i := range rows {
		list.Operators = append(list.Operators, *FromModel(&rows[i]))
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OperatorDTO, error) {
	operator, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(operator), nil
}

func (s *service) Create(ctx context.Context, input CreateOperatorInput) (*OperatorDTO, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	fields := map[string]string{}
	if len([]rune(username)) < minUsernameLength {
		fields["username"] = fmt.Sprintf("must be at least %d characters", minUsernameLength)
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		fields["email"] = "must be a valid email address"
	}
	password, temporary := input.Password, ""
	if password == "" {
		generated, err := security.GenerateTempPassword(tempPasswordLength)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temporary password")
		}
		password, temporary = generated, generated
	} else if err := security.ValidateStrength(password, s.password.MinLength); err != nil {
		fields["password"] = err.Error()
	}
	role := enums.OperatorRoleOperator
	if input.Role != nil {
		if !input.Role.IsValid() {
			fields["role"] = "must be admin or operator"
		} else {
			role = *input.Role
		}
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(fields)
	}

	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	operator, err := s.repo.Create(ctx, CreateOperatorDTO{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     trimmedOrNil(input.FullName),
		Role:         role,
	})
	if err != nil {
		return nil, mapWriteError(err, "create operator")
	}
	dto := FromModel(operator)
	dto.TemporaryPassword = temporary
	return dto, nil
}

// Update applies admin changes. Admins cannot demote or deactivate themselves.
func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateOperatorInput) (*OperatorDTO, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if actorID == id {
		if input.Role != nil && *input.Role != enums.OperatorRoleAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot change their own role")
		}
		if input.IsActive != nil && !*input.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot deactivate their own account")
		}
	}

	updates := map[string]any{}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if _, err := mail.ParseAddress(email); err != nil || email == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"email": "must be a valid email address"})
		}
		updates["email"] = email
	}
	if input.FullName != nil {
		updates["full_name"] = trimmedOrNil(input.FullName)
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"role": "must be admin or operator"})
		}
		updates["role"] = *input.Role
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, mapWriteError(err, "update operator")
	}
	operator, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(operator), nil
}

func (s *service) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := security.ValidateStrength(password, s.password.MinLength); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"password": err.Error()})
	}
	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	operator, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "operator not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load operator")
	}
	return operator, nil
}

func mapWriteError(err error, message string) error {
	switch {
	case dbpkg.IsUniqueViolation(err, uxOperatorsUsername):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "username already in use")
	case dbpkg.IsUniqueViolation(err, uxOperatorsEmail):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already in use")
	case dbpkg.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "operator already exists")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

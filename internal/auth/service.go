package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/internal/operators"
	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	tokenTypeBearer           = "Bearer"
)

// Service defines the behavior needed by the session controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, token string) error
}

type service struct {
	operators   operatorRepository
	session     sessionManager
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

type operatorRepository interface {
	FindByLogin(ctx context.Context, identifier string) (*models.Operator, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Issue(ctx context.Context, operatorID uuid.UUID, role enums.OperatorRole) (string, time.Time, error)
	Revoke(ctx context.Context, token string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	OperatorRepo   operatorRepository
	SessionManager sessionManager
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.OperatorRepo == nil {
		return nil, fmt.Errorf("operator repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		operators:   params.OperatorRepo,
		session:     params.SessionManager,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	operator, err := s.authenticate(ctx, req.Login, req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.operators.UpdateLastLogin(ctx, operator.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	operator.LastLoginAt = &now
	s.upgradeHash(ctx, operator, req.Password)

	token, expiresAt, err := s.session.Issue(ctx, operator.ID, operator.Role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue session")
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   expiresAt,
		Operator:    operators.FromModel(operator),
	}, nil
}

func (s *service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token")
	}
	if err := s.session.Revoke(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// authenticate never reveals whether the login or the password was wrong.
// The disabled-account answer is only given to callers holding the password.
func (s *service) authenticate(ctx context.Context, login, password string) (*models.Operator, error) {
	input := strings.TrimSpace(login)
	if input == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	operator, err := s.operators.FindByLogin(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup operator")
	}

	valid, err := security.VerifyPassword(password, operator.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if !operator.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeAccountDisabled, "operator account disabled")
	}
	return operator, nil
}

func (s *service) upgradeHash(ctx context.Context, operator *models.Operator, password string) {
	if !security.NeedsRehash(operator.PasswordHash, s.passwordCfg) {
		return
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err == nil {
		err = s.operators.UpdatePassword(ctx, operator.ID, hash)
	}
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOperatorID(ctx, operator.ID.String()), "password rehash failed: "+err.Error())
	}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/auth"
	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	redisclient "github.com/angelmondragon/cautela-backend/pkg/redis"
)

var (
	ErrExpired          = errors.New("session expired")
	ErrInvalidToken     = errors.New("invalid session token")
	ErrRevoked          = errors.New("session revoked")
	ErrAccountDisabled  = errors.New("operator account disabled")
	ErrOperatorNotFound = errors.New("operator not found")
)

type revocationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type revocationKeyer interface {
	RevocationKey(tokenID string) string
}

type operatorLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Operator, error)
}

// Principal is the verified identity behind a bearer token.
type Principal struct {
	OperatorID uuid.UUID
	Role       enums.OperatorRole
	TokenID    string
	ExpiresAt  time.Time
}

// Verifier exposes the read-only surface needed by middleware.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// revocationEntry is what the revocation set keeps per token id.
type revocationEntry struct {
	OperatorID string    `json:"operator_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Manager issues stateless access tokens and tracks explicit revocations.
type Manager struct {
	cfg       config.JWTConfig
	store     revocationStore
	keyer     revocationKeyer
	operators operatorLookup
	now       func() time.Time
}

// NewManager constructs a session manager whose revocation set lives in Redis.
func NewManager(client *redisclient.Client, operators operatorLookup, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if operators == nil {
		return nil, fmt.Errorf("operator lookup is required")
	}
	if cfg.TTL() <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	return &Manager{
		cfg:       cfg,
		store:     client,
		keyer:     client,
		operators: operators,
		now:       time.Now,
	}, nil
}

// Issue mints a signed bearer credential for the operator.
func (m *Manager) Issue(ctx context.Context, operatorID uuid.UUID, role enums.OperatorRole) (string, time.Time, error) {
	now := m.now().UTC()
	token, err := auth.MintAccessToken(m.cfg, now, auth.AccessTokenPayload{
		OperatorID: operatorID,
		Role:       role,
		JTI:        uuid.NewString(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now.Add(m.cfg.TTL()), nil
}

// Verify checks signature and expiry, consults the revocation set, then
// re-reads the operator so disabled or removed accounts lose access at once.
func (m *Manager) Verify(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := auth.ParseAccessToken(m.cfg, token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.OperatorID == uuid.Nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	revoked, err := m.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	operator, err := m.operators.FindByID(ctx, claims.OperatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("load operator: %w", err)
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}
	if !operator.IsActive {
		return nil, ErrAccountDisabled
	}

	return &Principal{
		OperatorID: operator.ID,
		Role:       operator.Role,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Revoke adds the token to the revocation set until its natural expiry.
// Tokens that already expired need no bookkeeping.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := auth.ParseAccessTokenAllowExpired(m.cfg, strings.TrimSpace(token))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrInvalidToken
	}

	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining <= 0 {
		return nil
	}

	entry, err := json.Marshal(revocationEntry{
		OperatorID: claims.OperatorID.String(),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	})
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.keyer.RevocationKey(claims.ID), string(entry), remaining)
}

func (m *Manager) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	raw, err := m.store.Get(ctx, m.keyer.RevocationKey(tokenID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read revocation set: %w", err)
	}

	var entry revocationEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// unreadable entries still count as revoked
		return true, nil
	}
	return entry.ExpiresAt.After(m.now()), nil
}

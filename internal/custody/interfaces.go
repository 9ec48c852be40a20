package custody

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
)

// Repository is the custody record store consumed by the lifecycle engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.CustodyRecord) (*models.CustodyRecord, error)
	GetByLinkToken(ctx context.Context, token string) (*models.CustodyRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CustodyRecord, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.CustodyRecord, string, error)
	ListSignatureEvents(ctx context.Context, recordID uuid.UUID) ([]models.SignatureEvent, error)
	ApplyTransition(ctx context.Context, recordID uuid.UUID, expected, next enums.CustodyStatus, fields TransitionFields) (bool, error)
	InsertSignatureEvent(ctx context.Context, event *models.SignatureEvent) (*models.SignatureEvent, error)
	InsertLinkToken(ctx context.Context, recordID uuid.UUID, token string, issuedAt time.Time) error
	RegenerateLinkToken(ctx context.Context, recordID uuid.UUID) (string, error)
	CountRetiredLinkTokens(ctx context.Context, since time.Time) (int64, error)
}

// ListFilters narrows record listings. Nil fields are ignored.
type ListFilters struct {
	Status       *enums.CustodyStatus
	MaterialKind *enums.MaterialKind
}

// TransitionFields carries the column changes applied together with a
// status transition. ExpectedLinkToken, when set, also guards the update.
type TransitionFields struct {
	SignedAt             *time.Time
	ReturnedAt           *time.Time
	ClearReturnedAt      bool
	CancelledAt          *time.Time
	LatestSignatureImage *string
	ExpectedLinkToken    string
}

package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/internal/repo"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
)

// ErrIllegalTransition is returned for status changes the lifecycle never makes.
var ErrIllegalTransition = errors.New("illegal custody transition")

type repository struct {
	repo.Base
	tokens TokenGenerator
}

// NewRepository builds a custody record store bound to the provided DB.
func NewRepository(db *gorm.DB, tokens TokenGenerator) Repository {
	if tokens == nil {
		tokens = NewTokenGenerator(0)
	}
	return &repository{Base: repo.NewBase(db), tokens: tokens}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.Bind(tx), tokens: r.tokens}
}

func (r *repository) Create(ctx context.Context, record *models.CustodyRecord) (*models.CustodyRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repository) GetByLinkToken(ctx context.Context, token string) (*models.CustodyRecord, error) {
	var record models.CustodyRecord
	if err := r.DB(ctx).Where("link_token = ?", token).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CustodyRecord, error) {
	var record models.CustodyRecord
	if err := r.DB(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records newest first plus the cursor of the next page, if any.
func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.CustodyRecord, string, error) {
	query := r.DB(ctx).Model(&models.CustodyRecord{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.MaterialKind != nil {
		query = query.Where("material_kind = ?", *filters.MaterialKind)
	}
	query, err := pagination.Keyset(query, params, pagination.NewestFirst)
	if err != nil {
		return nil, "", err
	}

	var rows []models.CustodyRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(rows, params.Limit, func(rec models.CustodyRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.ID}
	})
	return page, next, nil
}

// ListSignatureEvents returns the record's events in creation order.
func (r *repository) ListSignatureEvents(ctx context.Context, recordID uuid.UUID) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.DB(ctx).
		Where("custody_record_id = ?", recordID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ApplyTransition moves the record from expected to next in one conditional
// update. A false result means another writer changed the row first.
func (r *repository) ApplyTransition(ctx context.Context, recordID uuid.UUID, expected, next enums.CustodyStatus, fields TransitionFields) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, expected, next)
	}
	updates := map[string]any{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	if fields.SignedAt != nil {
		updates["signed_at"] = *fields.SignedAt
	}
	if fields.ReturnedAt != nil {
		updates["returned_at"] = *fields.ReturnedAt
	} else if fields.ClearReturnedAt {
		updates["returned_at"] = nil
	}
	if fields.CancelledAt != nil {
		updates["cancelled_at"] = *fields.CancelledAt
	}
	if fields.LatestSignatureImage != nil {
		updates["latest_signature_image"] = *fields.LatestSignatureImage
	}

	query := r.DB(ctx).Model(&models.CustodyRecord{}).
		Where("id = ?", recordID).
		Where("status = ?", expected)
	if fields.ExpectedLinkToken != "" {
		query = query.Where("link_token = ?", fields.ExpectedLinkToken)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertSignatureEvent(ctx context.Context, event *models.SignatureEvent) (*models.SignatureEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *repository) InsertLinkToken(ctx context.Context, recordID uuid.UUID, token string, issuedAt time.Time) error {
	return r.DB(ctx).Create(&models.CustodyLinkToken{
		Token:           token,
		CustodyRecordID: recordID,
		IssuedAt:        issuedAt,
	}).Error
}

// RegenerateLinkToken swaps the record's token for a fresh one and retires the
// previous token in the history table. Call it inside a transaction.
func (r *repository) RegenerateLinkToken(ctx context.Context, recordID uuid.UUID) (string, error) {
	db := r.DB(ctx)

	var current models.CustodyRecord
	if err := db.Select("id", "link_token").Where("id = ?", recordID).First(&current).Error; err != nil {
		return "", err
	}
	token, err := r.tokens.NewToken()
	if err != nil {
		return "", err
	}
	if token == current.LinkToken {
		return "", errors.New("generated link token matches the current one")
	}

	now := time.Now().UTC()
	res := db.Model(&models.CustodyRecord{}).
		Where("id = ?", recordID).
		Where("link_token = ?", current.LinkToken).
		Updates(map[string]any{
			"link_token": token,
			"updated_at": now,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected != 1 {
		return "", fmt.Errorf("link token for record %s changed concurrently", recordID)
	}

	if err := db.Model(&models.CustodyLinkToken{}).
		Where("custody_record_id = ?", recordID).
		Where("retired_at IS NULL").
		Update("retired_at", now).Error; err != nil {
		return "", err
	}
	if err := r.InsertLinkToken(ctx, recordID, token, now); err != nil {
		return "", err
	}
	return token, nil
}

// CountRetiredLinkTokens counts tokens retired at or after since.
func (r *repository) CountRetiredLinkTokens(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.CustodyLinkToken{}).
		Where("retired_at IS NOT NULL").
		Where("retired_at >= ?", since).
		Count(&count).Error
	return count, err
}

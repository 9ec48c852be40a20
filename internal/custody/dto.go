package custody

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// CreateRecordInput carries the operator-supplied details of a new record.
type CreateRecordInput struct {
	Material         string
	MaterialKind     enums.MaterialKind
	Quantity         decimal.Decimal
	CustodianName    string
	CustodianContact *string
	Notes            *string
	CreatedBy        uuid.UUID
}

// SignatureInput is a signature captured through the public link.
type SignatureInput struct {
	SignerName     string
	SignerTitle    *string
	SignatureImage string
	PortraitImage  *string
}

// CancelInput describes an administrative cancellation.
type CancelInput struct {
	ActorID uuid.UUID
	Reason  *string
}

// SignatureOutcome is the result of an accepted signature.
type SignatureOutcome struct {
	Record         *models.CustodyRecord
	Event          *models.SignatureEvent
	LegacyFallback bool
}

// RecordDTO is the authenticated view of a custody record.
type RecordDTO struct {
	ID                   uuid.UUID           `json:"id"`
	LinkToken            string              `json:"link_token"`
	ShareURL             string              `json:"share_url"`
	Material             string              `json:"material"`
	MaterialKind         enums.MaterialKind  `json:"material_kind"`
	Quantity             decimal.Decimal     `json:"quantity"`
	CustodianName        string              `json:"custodian_name"`
	CustodianContact     *string             `json:"custodian_contact,omitempty"`
	Status               enums.CustodyStatus `json:"status"`
	CanInitiateReturn    bool                `json:"can_initiate_return"`
	IssuedAt             time.Time           `json:"issued_at"`
	SignedAt             *time.Time          `json:"signed_at,omitempty"`
	ReturnedAt           *time.Time          `json:"returned_at,omitempty"`
	CancelledAt          *time.Time          `json:"cancelled_at,omitempty"`
	LatestSignatureImage *string             `json:"latest_signature_image,omitempty"`
	Notes                *string             `json:"notes,omitempty"`
	CreatedBy            uuid.UUID           `json:"created_by"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// PublicRecordDTO is what a custodian sees through the signing link.
type PublicRecordDTO struct {
	Material             string              `json:"material"`
	MaterialKind         enums.MaterialKind  `json:"material_kind"`
	Quantity             decimal.Decimal     `json:"quantity"`
	CustodianName        string              `json:"custodian_name"`
	Status               enums.CustodyStatus `json:"status"`
	AwaitingSignature    bool                `json:"awaiting_signature"`
	NextSignatureRole    *string             `json:"next_signature_role,omitempty"`
	IssuedAt             time.Time           `json:"issued_at"`
	SignedAt             *time.Time          `json:"signed_at,omitempty"`
	ReturnedAt           *time.Time          `json:"returned_at,omitempty"`
	LatestSignatureImage *string             `json:"latest_signature_image,omitempty"`
}

// SignatureDTO is one entry of a record's signature history.
type SignatureDTO struct {
	ID             uuid.UUID            `json:"id"`
	Role           *enums.SignatureRole `json:"role,omitempty"`
	SignerName     string               `json:"signer_name"`
	SignerTitle    *string              `json:"signer_title,omitempty"`
	SignatureImage string               `json:"signature_image"`
	PortraitImage  *string              `json:"portrait_image,omitempty"`
	CapturedAt     time.Time            `json:"captured_at"`
}

// RecordList wraps a page of records plus the next page cursor.
type RecordList struct {
	Records    []RecordDTO `json:"records"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// NewRecordDTO projects a record for operators.
func NewRecordDTO(record models.CustodyRecord, publicBaseURL string) RecordDTO {
	return RecordDTO{
		ID:                   record.ID,
		LinkToken:            record.LinkToken,
		ShareURL:             ShareURL(publicBaseURL, record.LinkToken),
		Material:             record.Material,
		MaterialKind:         record.MaterialKind,
		Quantity:             record.Quantity,
		CustodianName:        record.CustodianName,
		CustodianContact:     record.CustodianContact,
		Status:               record.Status,
		CanInitiateReturn:    record.MaterialKind.SupportsReturn() && record.Status == enums.CustodyStatusCheckedOut,
		IssuedAt:             record.IssuedAt,
		SignedAt:             record.SignedAt,
		ReturnedAt:           record.ReturnedAt,
		CancelledAt:          record.CancelledAt,
		LatestSignatureImage: record.LatestSignatureImage,
		Notes:                record.Notes,
		CreatedBy:            record.CreatedBy,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
}

// NewPublicRecordDTO projects a record for the public link. nextRole is only
// reported while the record awaits a signature.
func NewPublicRecordDTO(record models.CustodyRecord, nextRole *enums.SignatureRole) PublicRecordDTO {
	dto := PublicRecordDTO{
		Material:             record.Material,
		MaterialKind:         record.MaterialKind,
		Quantity:             record.Quantity,
		CustodianName:        record.CustodianName,
		Status:               record.Status,
		AwaitingSignature:    record.Status == enums.CustodyStatusPending,
		IssuedAt:             record.IssuedAt,
		SignedAt:             record.SignedAt,
		ReturnedAt:           record.ReturnedAt,
		LatestSignatureImage: record.LatestSignatureImage,
	}
	if dto.AwaitingSignature && nextRole != nil {
		role := nextRole.String()
		dto.NextSignatureRole = &role
	}
	return dto
}

// NewSignatureDTO projects a stored signature event.
func NewSignatureDTO(event models.SignatureEvent) SignatureDTO {
	return SignatureDTO{
		ID:             event.ID,
		Role:           event.Role,
		SignerName:     event.SignerName,
		SignerTitle:    event.SignerTitle,
		SignatureImage: event.SignatureImage,
		PortraitImage:  event.PortraitImage,
		CapturedAt:     event.CapturedAt,
	}
}

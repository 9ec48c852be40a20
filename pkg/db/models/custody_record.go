package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// CustodyRecord tracks one material checkout and its current disposition.
type CustodyRecord struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LinkToken            string              `gorm:"column:link_token;type:text;not null;uniqueIndex"`
	Material             string              `gorm:"column:material;type:text;not null"`
	MaterialKind         enums.MaterialKind  `gorm:"column:material_kind;type:material_kind;not null"`
	Quantity             decimal.Decimal     `gorm:"column:quantity;type:numeric(12,3);not null"`
	CustodianName        string              `gorm:"column:custodian_name;type:text;not null"`
	CustodianContact     *string             `gorm:"column:custodian_contact"`
	Status               enums.CustodyStatus `gorm:"column:status;type:custody_status;not null;default:'pending'"`
	IssuedAt             time.Time           `gorm:"column:issued_at;not null"`
	// SignedAt is the checkout time. It survives initiateReturn, so a reopened
	// pending record still carries it.
	SignedAt             *time.Time          `gorm:"column:signed_at"`
	ReturnedAt           *time.Time          `gorm:"column:returned_at"`
	CancelledAt          *time.Time          `gorm:"column:cancelled_at"`
	LatestSignatureImage *string             `gorm:"column:latest_signature_image"`
	Notes                *string             `gorm:"column:notes"`
	CreatedBy            uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

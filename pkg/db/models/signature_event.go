package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// SignatureEvent is an immutable captured signature tied to a custody record.
// Role is nil only for rows written before the role column existed.
type SignatureEvent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustodyRecordID uuid.UUID            `gorm:"column:custody_record_id;type:uuid;not null;index"`
	Role            *enums.SignatureRole `gorm:"column:role;type:signature_role"`
	SignerName      string               `gorm:"column:signer_name;type:text;not null"`
	SignerTitle     *string              `gorm:"column:signer_title"`
	SignatureImage  string               `gorm:"column:signature_image;type:text;not null"`
	PortraitImage   *string              `gorm:"column:portrait_image"`
	CapturedAt      time.Time            `gorm:"column:captured_at;not null"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

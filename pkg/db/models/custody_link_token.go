package models

import (
	"time"

	"github.com/google/uuid"
)

// CustodyLinkToken keeps every link token ever issued so none is reassigned.
type CustodyLinkToken struct {
	Token           string     `gorm:"column:token;type:text;primaryKey"`
	CustodyRecordID uuid.UUID  `gorm:"column:custody_record_id;type:uuid;not null;index"`
	IssuedAt        time.Time  `gorm:"column:issued_at;not null"`
	RetiredAt       *time.Time `gorm:"column:retired_at"`
}

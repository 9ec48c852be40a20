package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// CustodyRecordCreatedEvent is emitted when an operator opens a new record.
type CustodyRecordCreatedEvent struct {
	CustodyRecordID uuid.UUID          `json:"custody_record_id"`
	MaterialKind    enums.MaterialKind `json:"material_kind"`
	Material        string             `json:"material"`
	Quantity        string             `json:"quantity"`
	CustodianName   string             `json:"custodian_name"`
	CreatedBy       uuid.UUID          `json:"created_by"`
	IssuedAt        time.Time          `json:"issued_at"`
}

// CustodySignedEvent is emitted for both checkout and return signatures.
type CustodySignedEvent struct {
	CustodyRecordID  uuid.UUID           `json:"custody_record_id"`
	SignatureEventID uuid.UUID           `json:"signature_event_id"`
	Role             enums.SignatureRole `json:"role"`
	SignerName       string              `json:"signer_name"`
	PreviousStatus   enums.CustodyStatus `json:"previous_status"`
	Status           enums.CustodyStatus `json:"status"`
	SignedAt         time.Time           `json:"signed_at"`
	LegacyFallback   bool                `json:"legacy_fallback,omitempty"`
}

// CustodyReturnInitiatedEvent is emitted when a durable record is reopened for return.
type CustodyReturnInitiatedEvent struct {
	CustodyRecordID uuid.UUID `json:"custody_record_id"`
	InitiatedBy     uuid.UUID `json:"initiated_by"`
	InitiatedAt     time.Time `json:"initiated_at"`
}

// CustodyCancelledEvent is emitted on administrative cancellation.
type CustodyCancelledEvent struct {
	CustodyRecordID uuid.UUID           `json:"custody_record_id"`
	PreviousStatus  enums.CustodyStatus `json:"previous_status"`
	CancelledBy     uuid.UUID           `json:"cancelled_by"`
	Reason          *string             `json:"reason,omitempty"`
	CancelledAt     time.Time           `json:"cancelled_at"`
}

// RecordID lets the publisher check a payload against its outbox row.
func (e CustodyRecordCreatedEvent) RecordID() uuid.UUID   { return e.CustodyRecordID }
func (e CustodySignedEvent) RecordID() uuid.UUID          { return e.CustodyRecordID }
func (e CustodyReturnInitiatedEvent) RecordID() uuid.UUID { return e.CustodyRecordID }
func (e CustodyCancelledEvent) RecordID() uuid.UUID       { return e.CustodyRecordID }

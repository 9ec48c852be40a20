package custody

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/metrics"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
)

const (
	opCreateRecord    = "create_record"
	opSubmitSignature = "submit_signature"
	opInitiateReturn  = "initiate_return"
	opCancel          = "cancel"

	defaultTransitionAttempts = 3
)

// errTransitionLost marks a conditional update that matched no row because
// another writer moved the record first. It never leaves the service.
var errTransitionLost = errors.New("custody transition lost a concurrent update")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the custody lifecycle engine.
type Service interface {
	CreateRecord(ctx context.Context, input CreateRecordInput) (*models.CustodyRecord, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.CustodyRecord, error)
	GetRecordByLink(ctx context.Context, token string) (*PublicRecordDTO, error)
	ListRecords(ctx context.Context, params pagination.Params, filters ListFilters) (*RecordList, error)
	ListSignatures(ctx context.Context, id uuid.UUID) ([]SignatureDTO, error)
	SubmitSignature(ctx context.Context, token string, input SignatureInput) (*SignatureOutcome, error)
	InitiateReturn(ctx context.Context, id, actorID uuid.UUID) (*models.CustodyRecord, error)
	Cancel(ctx context.Context, id uuid.UUID, input CancelInput) (*models.CustodyRecord, error)
}

// ServiceParams groups the engine dependencies.
type ServiceParams struct {
	Repo               Repository
	Tx                 txRunner
	Outbox             outboxPublisher
	Tokens             TokenGenerator
	Metrics            *metrics.CustodyMetrics
	Logger             *logger.Logger
	TransitionAttempts int
	PublicBaseURL      string
	Clock              func() time.Time
}

type service struct {
	repo          Repository
	tx            txRunner
	outbox        outboxPublisher
	tokens        TokenGenerator
	metrics       *metrics.CustodyMetrics
	logg          *logger.Logger
	attempts      int
	publicBaseURL string
	now           func() time.Time
}

// NewService builds the lifecycle engine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("custody repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{
		repo:          params.Repo,
		tx:            params.Tx,
		outbox:        params.Outbox,
		tokens:        params.Tokens,
		metrics:       params.Metrics,
		logg:          params.Logger,
		attempts:      params.TransitionAttempts,
		publicBaseURL: params.PublicBaseURL,
		now:           params.Clock,
	}
	if svc.tokens == nil {
		svc.tokens = NewTokenGenerator(0)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.NewCustodyMetrics(nil)
	}
	if svc.logg == nil {
		svc.logg = logger.New(logger.Options{ServiceName: "custody", Output: io.Discard})
	}
	if svc.attempts <= 0 {
		svc.attempts = defaultTransitionAttempts
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) CreateRecord(ctx context.Context, input CreateRecordInput) (*models.CustodyRecord, error) {
	defer s.observe(opCreateRecord, time.Now())

	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	token, err := s.tokens.NewToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate link token")
	}

	now := s.now()
	record := &models.CustodyRecord{
		ID:               uuid.New(),
		LinkToken:        token,
		Material:         strings.TrimSpace(input.Material),
		MaterialKind:     input.MaterialKind,
		Quantity:         input.Quantity,
		CustodianName:    strings.TrimSpace(input.CustodianName),
		CustodianContact: trimmedOrNil(input.CustodianContact),
		Status:           enums.CustodyStatusPending,
		IssuedAt:         now,
		Notes:            trimmedOrNil(input.Notes),
		CreatedBy:        input.CreatedBy,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, record); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "link token already issued")
			}
			return s.storeError(ctx, err, "create custody record")
		}
		if err := repo.InsertLinkToken(ctx, record.ID, token, now); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "link token already issued")
			}
			return s.storeError(ctx, err, "record link token")
		}
		return s.emit(ctx, tx, enums.EventCustodyRecordCreated, record.ID, outbox.OperatorActor(input.CreatedBy), payloads.CustodyRecordCreatedEvent{
			CustodyRecordID: record.ID,
			MaterialKind:    record.MaterialKind,
			Material:        record.Material,
			Quantity:        record.Quantity.String(),
			CustodianName:   record.CustodianName,
			CreatedBy:       record.CreatedBy,
			IssuedAt:        record.IssuedAt,
		})
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "create custody record")
	}

	logCtx := s.logg.WithCustodyRecord(ctx, record.ID.String())
	logCtx = s.logg.WithField(logCtx, "material_kind", record.MaterialKind)
	s.logg.Info(logCtx, "custody record created")
	return record, nil
}

func (s *service) GetRecord(ctx context.Context, id uuid.UUID) (*models.CustodyRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, err, "load custody record")
	}
	return record, nil
}

func (s *service) GetRecordByLink(ctx context.Context, token string) (*PublicRecordDTO, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, notFound()
	}
	record, err := s.repo.GetByLinkToken(ctx, token)
	if err != nil {
		return nil, s.lookupError(ctx, err, "load custody record by link")
	}

	var nextRole *enums.SignatureRole
	if record.Status == enums.CustodyStatusPending {
		events, err := s.repo.ListSignatureEvents(ctx, record.ID)
		if err != nil {
			return nil, s.storeError(ctx, err, "load signature events")
		}
		role, _ := DetermineRole(events)
		nextRole = &role
	}
	dto := NewPublicRecordDTO(*record, nextRole)
	return &dto, nil
}

func (s *service) ListRecords(ctx context.Context, params pagination.Params, filters ListFilters) (*RecordList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filters.MaterialKind != nil && !filters.MaterialKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid material kind filter")
	}

	rows, next, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, s.storeError(ctx, err, "list custody records")
	}
	list := &RecordList{
		Records:    make([]RecordDTO, 0, len(rows)),
		NextCursor: next,
	}
	for _, row := range rows {
		list.Records = append(list.Records, NewRecordDTO(row, s.publicBaseURL))
	}
	return list, nil
}

func (s *service) ListSignatures(ctx context.Context, id uuid.UUID) ([]SignatureDTO, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, s.lookupError(ctx, err, "load custody record")
	}
	events, err := s.repo.ListSignatureEvents(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, err, "load signature events")
	}
	out := make([]SignatureDTO, 0, len(events))
	for _, event := range events {
		out = append(out, NewSignatureDTO(event))
	}
	return out, nil
}

// SubmitSignature attaches a signature to the record behind token and moves
// it to checked out or returned depending on the signatures already captured.
func (s *service) SubmitSignature(ctx context.Context, token string, input SignatureInput) (*SignatureOutcome, error) {
	defer s.observe(opSubmitSignature, time.Now())

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, notFound()
	}
	if strings.TrimSpace(input.SignatureImage) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"signature_image": "required"})
	}

	var outcome *SignatureOutcome
	err := s.withTransitionRetry(ctx, opSubmitSignature, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.submitOnce(ctx, tx, token, input)
		return err
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "submit signature")
	}

	s.metrics.IncTransition(string(enums.CustodyStatusPending), string(outcome.Record.Status))
	if outcome.LegacyFallback {
		s.metrics.IncLegacyFallback()
	}
	logCtx := s.logg.WithCustodyRecord(ctx, outcome.Record.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"role":   outcome.Event.Role,
		"status": outcome.Record.Status,
	})
	s.logg.Info(logCtx, "custody signature accepted")
	return outcome, nil
}

func (s *service) submitOnce(ctx context.Context, tx *gorm.DB, token string, input SignatureInput) (*SignatureOutcome, error) {
	repo := s.repo.WithTx(tx)

	record, err := repo.GetByLinkToken(ctx, token)
	if err != nil {
		return nil, s.lookupError(ctx, err, "load custody record by link")
	}
	if record.Status != enums.CustodyStatusPending {
		return nil, invalidState("custody record is not awaiting a signature", record.Status)
	}

	events, err := repo.ListSignatureEvents(ctx, record.ID)
	if err != nil {
		return nil, s.storeError(ctx, err, "load signature events")
	}
	role, fallback := DetermineRole(events)
	if fallback {
		logCtx := s.logg.WithCustodyRecord(ctx, record.ID.String())
		logCtx = s.logg.WithField(logCtx, "prior_events", len(events))
		s.logg.Warn(logCtx, "signature events carry no checkout role, treating submission as return")
	}
	if hasRole(events, role) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "signature already captured for this role").
			WithDetails(map[string]any{"role": role})
	}

	now := s.now()
	image := input.SignatureImage
	fields := TransitionFields{
		LatestSignatureImage: &image,
		ExpectedLinkToken:    token,
	}
	next := enums.CustodyStatusCheckedOut
	eventType := enums.EventCustodyCheckedOut
	if role == enums.SignatureRoleReturn {
		next = enums.CustodyStatusReturned
		eventType = enums.EventCustodyReturned
		fields.ReturnedAt = &now
		if record.SignedAt == nil {
			fields.SignedAt = &now
		}
	} else {
		fields.SignedAt = &now
	}

	applied, err := repo.ApplyTransition(ctx, record.ID, enums.CustodyStatusPending, next, fields)
	if err != nil {
		return nil, s.storeError(ctx, err, "apply custody transition")
	}
	if !applied {
		return nil, errTransitionLost
	}

	signerName := strings.TrimSpace(input.SignerName)
	if signerName == "" {
		signerName = record.CustodianName
	}
	event := &models.SignatureEvent{
		ID:              uuid.New(),
		CustodyRecordID: record.ID,
		Role:            &role,
		SignerName:      signerName,
		SignerTitle:     trimmedOrNil(input.SignerTitle),
		SignatureImage:  image,
		PortraitImage:   input.PortraitImage,
		CapturedAt:      now,
	}
	if _, err := repo.InsertSignatureEvent(ctx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			s.metrics.IncConflict(opSubmitSignature)
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "signature already captured for this role")
		}
		return nil, s.storeError(ctx, err, "insert signature event")
	}

	err = s.emit(ctx, tx, eventType, record.ID, outbox.PublicLinkActor(), payloads.CustodySignedEvent{
		CustodyRecordID:  record.ID,
		SignatureEventID: event.ID,
		Role:             role,
		SignerName:       signerName,
		PreviousStatus:   enums.CustodyStatusPending,
		Status:           next,
		SignedAt:         now,
		LegacyFallback:   fallback,
	})
	if err != nil {
		return nil, err
	}

	updated, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		return nil, s.storeError(ctx, err, "reload custody record")
	}
	return &SignatureOutcome{Record: updated, Event: event, LegacyFallback: fallback}, nil
}

// InitiateReturn reopens a checked out durable record for its return
// signature under a fresh link token. The previous token stops resolving.
func (s *service) InitiateReturn(ctx context.Context, id, actorID uuid.UUID) (*models.CustodyRecord, error) {
	defer s.observe(opInitiateReturn, time.Now())

	var updated *models.CustodyRecord
	err := s.withTransitionRetry(ctx, opInitiateReturn, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.GetByID(ctx, id)
		if err != nil {
			return s.lookupError(ctx, err, "load custody record")
		}
		if !record.MaterialKind.SupportsReturn() {
			return pkgerrors.Newf(pkgerrors.CodeUnsupported, "%s materials cannot be returned", strings.ToLower(string(record.MaterialKind))).
				WithDetails(map[string]any{"material_kind": record.MaterialKind})
		}
		if record.Status != enums.CustodyStatusCheckedOut {
			return invalidState("return can only start from a checked out record", record.Status)
		}

		applied, err := repo.ApplyTransition(ctx, id, enums.CustodyStatusCheckedOut, enums.CustodyStatusPending, TransitionFields{
			ClearReturnedAt: true,
		})
		if err != nil {
			return s.storeError(ctx, err, "apply custody transition")
		}
		if !applied {
			return errTransitionLost
		}
		if _, err := repo.RegenerateLinkToken(ctx, id); err != nil {
			return s.storeError(ctx, err, "regenerate link token")
		}

		err = s.emit(ctx, tx, enums.EventCustodyReturnInitiated, id, outbox.OperatorActor(actorID), payloads.CustodyReturnInitiatedEvent{
			CustodyRecordID: id,
			InitiatedBy:     actorID,
			InitiatedAt:     s.now(),
		})
		if err != nil {
			return err
		}

		updated, err = repo.GetByID(ctx, id)
		if err != nil {
			return s.storeError(ctx, err, "reload custody record")
		}
		return nil
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "initiate return")
	}

	s.metrics.IncTransition(string(enums.CustodyStatusCheckedOut), string(enums.CustodyStatusPending))
	logCtx := s.logg.WithCustodyRecord(ctx, id.String())
	logCtx = s.logg.WithOperatorID(logCtx, actorID.String())
	s.logg.Info(logCtx, "custody return initiated")
	return updated, nil
}

// Cancel closes a pending or checked out record administratively.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, input CancelInput) (*models.CustodyRecord, error) {
	defer s.observe(opCancel, time.Now())

	var (
		updated  *models.CustodyRecord
		previous enums.CustodyStatus
	)
	err := s.withTransitionRetry(ctx, opCancel, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.GetByID(ctx, id)
		if err != nil {
			return s.lookupError(ctx, err, "load custody record")
		}
		if record.Status.IsTerminal() {
			return invalidState("custody record is already closed", record.Status)
		}
		previous = record.Status

		now := s.now()
		applied, err := repo.ApplyTransition(ctx, id, record.Status, enums.CustodyStatusCancelled, TransitionFields{
			CancelledAt: &now,
		})
		if err != nil {
			return s.storeError(ctx, err, "apply custody transition")
		}
		if !applied {
			return errTransitionLost
		}

		err = s.emit(ctx, tx, enums.EventCustodyCancelled, id, outbox.OperatorActor(input.ActorID), payloads.CustodyCancelledEvent{
			CustodyRecordID: id,
			PreviousStatus:  record.Status,
			CancelledBy:     input.ActorID,
			Reason:          trimmedOrNil(input.Reason),
			CancelledAt:     now,
		})
		if err != nil {
			return err
		}

		updated, err = repo.GetByID(ctx, id)
		if err != nil {
			return s.storeError(ctx, err, "reload custody record")
		}
		return nil
	})
	if err != nil {
		return nil, s.storeError(ctx, err, "cancel custody record")
	}

	s.metrics.IncTransition(string(previous), string(enums.CustodyStatusCancelled))
	logCtx := s.logg.WithCustodyRecord(ctx, id.String())
	logCtx = s.logg.WithOperatorID(logCtx, input.ActorID.String())
	s.logg.Info(logCtx, "custody record cancelled")
	return updated, nil
}

// withTransitionRetry runs fn in a fresh transaction until it stops losing
// conditional updates, up to the configured attempt count.
func (s *service) withTransitionRetry(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err := s.tx.WithTx(ctx, fn)
		if !errors.Is(err, errTransitionLost) {
			return err
		}
		s.metrics.IncConflict(operation)
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"attempt":   attempt,
		})
		s.logg.Warn(logCtx, "custody transition lost a concurrent update")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "custody record was modified concurrently")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, recordID uuid.UUID, actor *outbox.ActorRef, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCustodyRecord,
		AggregateID:   recordID,
		Actor:         actor,
		Data:          data,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue custody event")
	}
	return nil
}

func (s *service) observe(operation string, start time.Time) {
	s.metrics.ObserveOperation(operation, time.Since(start))
}

func (s *service) lookupError(ctx context.Context, err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound()
	}
	return s.storeError(ctx, err, message)
}

// storeError passes typed errors through and classifies raw store failures.
// A schema mismatch is a deployment fault, never a condition to branch on.
func (s *service) storeError(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil || errors.Is(err, errTransitionLost) {
		return err
	}
	if dbpkg.IsSchemaMismatch(err) {
		s.logg.Error(ctx, "database schema does not match this build", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "database schema mismatch")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func validateCreateInput(input CreateRecordInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(input.Material) == "" {
		fields["material"] = "required"
	}
	if !input.MaterialKind.IsValid() {
		fields["material_kind"] = "must be consumable or durable"
	}
	if !input.Quantity.IsPositive() {
		fields["quantity"] = "must be greater than zero"
	}
	if strings.TrimSpace(input.CustodianName) == "" {
		fields["custodian_name"] = "required"
	}
	if input.CreatedBy == uuid.Nil {
		fields["created_by"] = "required"
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(fields)
	}
	return nil
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "custody record not found")
}

func invalidState(message string, status enums.CustodyStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, message).
		WithDetails(map[string]any{"status": status})
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

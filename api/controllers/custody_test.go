package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/pagination"
)

const testBaseURL = "https://cautela.example/assinar"

type stubCustodyService struct {
	record        *models.CustodyRecord
	publicRecord  *custody.PublicRecordDTO
	outcome       *custody.SignatureOutcome
	err           error
	lastCreate    custody.CreateRecordInput
	lastFilters   custody.ListFilters
	lastParams    pagination.Params
	lastToken     string
	lastSignature custody.SignatureInput
	lastCancel    custody.CancelInput
	lastActor     uuid.UUID
}

func (s *stubCustodyService) CreateRecord(ctx context.Context, input custody.CreateRecordInput) (*models.CustodyRecord, error) {
	s.lastCreate = input
	return s.record, s.err
}

func (s *stubCustodyService) GetRecord(ctx context.Context, id uuid.UUID) (*models.CustodyRecord, error) {
	return s.record, s.err
}

func (s *stubCustodyService) GetRecordByLink(ctx context.Context, token string) (*custody.PublicRecordDTO, error) {
	s.lastToken = token
	return s.publicRecord, s.err
}

func (s *stubCustodyService) ListRecords(ctx context.Context, params pagination.Params, filters custody.ListFilters) (*custody.RecordList, error) {
	s.lastParams = params
	s.lastFilters = filters
	if s.err != nil {
		return nil, s.err
	}
	return &custody.RecordList{Records: []custody.RecordDTO{custody.NewRecordDTO(*s.record, testBaseURL)}, NextCursor: "next"}, nil
}

func (s *stubCustodyService) ListSignatures(ctx context.Context, id uuid.UUID) ([]custody.SignatureDTO, error) {
	return []custody.SignatureDTO{}, s.err
}

func (s *stubCustodyService) SubmitSignature(ctx context.Context, token string, input custody.SignatureInput) (*custody.SignatureOutcome, error) {
	s.lastToken = token
	s.lastSignature = input
	return s.outcome, s.err
}

func (s *stubCustodyService) InitiateReturn(ctx context.Context, id, actorID uuid.UUID) (*models.CustodyRecord, error) {
	s.lastActor = actorID
	return s.record, s.err
}

func (s *stubCustodyService) Cancel(ctx context.Context, id uuid.UUID, input custody.CancelInput) (*models.CustodyRecord, error) {
	s.lastCancel = input
	return s.record, s.err
}

func sampleRecord(status enums.CustodyStatus, kind enums.MaterialKind) *models.CustodyRecord {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return &models.CustodyRecord{
		ID:            uuid.New(),
		LinkToken:     "tok_abc",
		Material:      "Radio HT",
		MaterialKind:  kind,
		Quantity:      decimal.NewFromInt(1),
		CustodianName: "Sd Souza",
		Status:        status,
		IssuedAt:      now,
		CreatedBy:     uuid.New(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateCustodyRecord(t *testing.T) {
	svc := &stubCustodyService{record: sampleRecord(enums.CustodyStatusPending, enums.MaterialKindDurable)}
	operatorID := uuid.New()
	handler := CreateCustodyRecord(svc, testBaseURL, nil)

	body := `{"material":"  Radio HT ","material_kind":"durable","quantity":"2","custodian_name":"Sd Souza","notes":"  "}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/custody-records", strings.NewReader(body))
	req = withOperator(req, operatorID, enums.OperatorRoleOperator)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCreate.CreatedBy != operatorID {
		t.Fatalf("expected record to be attributed to the caller")
	}
	if svc.lastCreate.Material != "Radio HT" || svc.lastCreate.Notes != nil {
		t.Fatalf("expected sanitized input, got %+v", svc.lastCreate)
	}
	if !svc.lastCreate.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected quantity %s", svc.lastCreate.Quantity)
	}

	var dto custody.RecordDTO
	decodeData(t, rec, &dto)
	if dto.ShareURL != testBaseURL+"/tok_abc" {
		t.Fatalf("unexpected share url %q", dto.ShareURL)
	}
}

func TestCreateCustodyRecordRejectsUnknownKind(t *testing.T) {
	svc := &stubCustodyService{}
	handler := CreateCustodyRecord(svc, testBaseURL, nil)

	body := `{"material":"Radio","material_kind":"perishable","quantity":1,"custodian_name":"Sd Souza"}`
	req := withOperator(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New(), enums.OperatorRoleOperator)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestListCustodyRecordsParsesFilters(t *testing.T) {
	svc := &stubCustodyService{record: sampleRecord(enums.CustodyStatusCheckedOut, enums.MaterialKindDurable)}
	handler := ListCustodyRecords(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/?status=checked_out&material_kind=durable&limit=5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastFilters.Status == nil || *svc.lastFilters.Status != enums.CustodyStatusCheckedOut {
		t.Fatalf("status filter not forwarded")
	}
	if svc.lastFilters.MaterialKind == nil || *svc.lastFilters.MaterialKind != enums.MaterialKindDurable {
		t.Fatalf("material kind filter not forwarded")
	}
	if svc.lastParams.Limit != 5 {
		t.Fatalf("expected limit 5 got %d", svc.lastParams.Limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/?status=lost", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
}

func TestGetCustodyRecordRejectsBadID(t *testing.T) {
	handler := GetCustodyRecord(&stubCustodyService{}, testBaseURL, nil)
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"recordId": "nope"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestInitiateCustodyReturnMapsUnsupported(t *testing.T) {
	svc := &stubCustodyService{err: pkgerrors.New(pkgerrors.CodeUnsupported, "consumable materials are not returned")}
	handler := InitiateCustodyReturn(svc, testBaseURL, nil)
	operatorID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withURLParams(req, map[string]string{"recordId": uuid.NewString()})
	req = withOperator(req, operatorID, enums.OperatorRoleOperator)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != string(pkgerrors.CodeUnsupported) {
		t.Fatalf("expected unsupported, got %d %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor != operatorID {
		t.Fatalf("expected actor to be forwarded")
	}
}

func TestCancelCustodyRecordAcceptsEmptyBody(t *testing.T) {
	svc := &stubCustodyService{record: sampleRecord(enums.CustodyStatusCancelled, enums.MaterialKindConsumable)}
	handler := CancelCustodyRecord(svc, testBaseURL, nil)
	operatorID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withURLParams(req, map[string]string{"recordId": uuid.NewString()})
	req = withOperator(req, operatorID, enums.OperatorRoleOperator)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCancel.ActorID != operatorID || svc.lastCancel.Reason != nil {
		t.Fatalf("unexpected cancel input %+v", svc.lastCancel)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"material extraviado"}`))
	req = withURLParams(req, map[string]string{"recordId": uuid.NewString()})
	req = withOperator(req, operatorID, enums.OperatorRoleOperator)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if svc.lastCancel.Reason == nil || *svc.lastCancel.Reason != "material extraviado" {
		t.Fatalf("expected reason to be forwarded")
	}
}

package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
)

func TestPublicGetCustodyUsesLinkToken(t *testing.T) {
	role := "checkout"
	svc := &stubCustodyService{publicRecord: &custody.PublicRecordDTO{
		Material:          "Colete balistico",
		Status:            enums.CustodyStatusPending,
		AwaitingSignature: true,
		NextSignatureRole: &role,
	}}
	handler := PublicGetCustody(svc, nil)

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"linkToken": "tok_abc"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastToken != "tok_abc" {
		t.Fatalf("expected link token to be forwarded, got %q", svc.lastToken)
	}
	if strings.Contains(rec.Body.String(), "created_by") || strings.Contains(rec.Body.String(), "link_token") {
		t.Fatalf("public projection leaked operator fields: %s", rec.Body.String())
	}
}

func TestPublicGetCustodyNotFound(t *testing.T) {
	svc := &stubCustodyService{err: pkgerrors.New(pkgerrors.CodeNotFound, "custody record not found")}
	handler := PublicGetCustody(svc, nil)

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"linkToken": "retired"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestPublicSubmitSignature(t *testing.T) {
	record := sampleRecord(enums.CustodyStatusCheckedOut, enums.MaterialKindDurable)
	role := enums.SignatureRoleCheckout
	captured := time.Date(2026, 10, 1, 12, 5, 0, 0, time.UTC)
	svc := &stubCustodyService{outcome: &custody.SignatureOutcome{
		Record: record,
		Event: &models.SignatureEvent{
			ID:              uuid.New(),
			CustodyRecordID: record.ID,
			Role:            &role,
			SignerName:      "Sd Souza",
			SignatureImage:  "data:image/png;base64,AAAA",
			CapturedAt:      captured,
		},
	}}
	handler := PublicSubmitSignature(svc, nil)

	body := `{"signature_image":" data:image/png;base64,AAAA ","signer_name":"  ","signer_title":"Soldado"}`
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), map[string]string{"linkToken": "tok_abc"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastSignature.SignerName != "" {
		t.Fatalf("blank signer name should defer to the custodian name")
	}
	if svc.lastSignature.SignatureImage != "data:image/png;base64,AAAA" {
		t.Fatalf("expected trimmed signature image")
	}
	if svc.lastSignature.SignerTitle == nil || *svc.lastSignature.SignerTitle != "Soldado" {
		t.Fatalf("expected signer title to be forwarded")
	}

	var resp struct {
		Role   string                  `json:"role"`
		Record custody.PublicRecordDTO `json:"record"`
	}
	decodeData(t, rec, &resp)
	if resp.Role != "checkout" || resp.Record.Status != enums.CustodyStatusCheckedOut {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPublicSubmitSignatureRequiresImage(t *testing.T) {
	svc := &stubCustodyService{}
	handler := PublicSubmitSignature(svc, nil)

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"signer_name":"Sd Souza"}`)), map[string]string{"linkToken": "tok_abc"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.lastToken != "" {
		t.Fatalf("service should not be called on invalid payloads")
	}
}

func TestPublicSubmitSignatureMapsInvalidState(t *testing.T) {
	svc := &stubCustodyService{err: pkgerrors.New(pkgerrors.CodeInvalidState, "record is not awaiting a signature")}
	handler := PublicSubmitSignature(svc, nil)

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"signature_image":"img"}`)), map[string]string{"linkToken": "tok_abc"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state, got %d %s", rec.Code, rec.Body.String())
	}
}

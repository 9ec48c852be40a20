package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cautela-backend/api/middleware"
	"github.com/angelmondragon/cautela-backend/api/responses"
	"github.com/angelmondragon/cautela-backend/api/validators"
	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

const (
	maxMaterialLength = 200
	maxNameLength     = 200
	maxNotesLength    = 2000
)

type createCustodyRecordRequest struct {
	Material         string          `json:"material" validate:"required,notblank,max=200"`
	MaterialKind     string          `json:"material_kind" validate:"required,oneof=consumable durable"`
	Quantity         decimal.Decimal `json:"quantity"`
	CustodianName    string          `json:"custodian_name" validate:"required,notblank,max=200"`
	CustodianContact *string         `json:"custodian_contact,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
}

type cancelCustodyRecordRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=2000"`
}

// CreateCustodyRecord opens a pending record and returns it with its share link.
func CreateCustodyRecord(svc custody.Service, publicBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}
		operatorID, ok := middleware.OperatorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
			return
		}

		var body createCustodyRecordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CreateRecord(r.Context(), custody.CreateRecordInput{
			Material:         validators.SanitizeString(body.Material, maxMaterialLength),
			MaterialKind:     enums.MaterialKind(body.MaterialKind),
			Quantity:         body.Quantity,
			CustodianName:    validators.SanitizeString(body.CustodianName, maxNameLength),
			CustodianContact: validators.OptionalString(body.CustodianContact, maxNameLength),
			Notes:            validators.OptionalString(body.Notes, maxNotesLength),
			CreatedBy:        operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, custody.NewRecordDTO(*record, publicBaseURL))
	}
}

// ListCustodyRecords returns records newest first, optionally filtered by
// status and material_kind.
func ListCustodyRecords(svc custody.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := validators.ParseOptionalQuery(r, "status", enums.ParseCustodyStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := validators.ParseOptionalQuery(r, "material_kind", enums.ParseMaterialKind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := custody.ListFilters{Status: status, MaterialKind: kind}

		list, err := svc.ListRecords(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetCustodyRecord(svc custody.Service, publicBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetRecord(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, custody.NewRecordDTO(*record, publicBaseURL))
	}
}

// ListCustodySignatures returns the signature history in capture order.
func ListCustodySignatures(svc custody.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		signatures, err := svc.ListSignatures(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"signatures": signatures})
	}
}

// InitiateCustodyReturn reopens a checked-out durable record for its return
// signature under a fresh link.
func InitiateCustodyReturn(svc custody.Service, publicBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}
		operatorID, ok := middleware.OperatorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.InitiateReturn(r.Context(), id, operatorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, custody.NewRecordDTO(*record, publicBaseURL))
	}
}

func CancelCustodyRecord(svc custody.Service, publicBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}
		operatorID, ok := middleware.OperatorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelCustodyRecordRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		record, err := svc.Cancel(r.Context(), id, custody.CancelInput{
			ActorID: operatorID,
			Reason:  validators.OptionalString(body.Reason, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, custody.NewRecordDTO(*record, publicBaseURL))
	}
}

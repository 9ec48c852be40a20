package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cautela-backend/api/responses"
	"github.com/angelmondragon/cautela-backend/api/validators"
	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

type submitSignatureRequest struct {
	SignerName     *string `json:"signer_name,omitempty" validate:"omitempty,max=200"`
	SignerTitle    *string `json:"signer_title,omitempty" validate:"omitempty,max=200"`
	SignatureImage string  `json:"signature_image" validate:"required,notblank"`
	PortraitImage  *string `json:"portrait_image,omitempty"`
}

type submitSignatureResponse struct {
	Role       *enums.SignatureRole    `json:"role"`
	CapturedAt time.Time               `json:"captured_at"`
	Record     custody.PublicRecordDTO `json:"record"`
}

// PublicGetCustody resolves a signing link into its public projection.
func PublicGetCustody(svc custody.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}

		record, err := svc.GetRecordByLink(r.Context(), linkTokenParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// PublicSubmitSignature records the custodian's signature behind a link.
func PublicSubmitSignature(svc custody.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "custody service unavailable"))
			return
		}

		var body submitSignatureRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := custody.SignatureInput{
			SignerTitle:    validators.OptionalString(body.SignerTitle, maxNameLength),
			SignatureImage: strings.TrimSpace(body.SignatureImage),
			PortraitImage:  validators.OptionalString(body.PortraitImage, 0),
		}
		if name := validators.OptionalString(body.SignerName, maxNameLength); name != nil {
			input.SignerName = *name
		}

		outcome, err := svc.SubmitSignature(r.Context(), linkTokenParam(r), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, submitSignatureResponse{
			Role:       outcome.Event.Role,
			CapturedAt: outcome.Event.CapturedAt,
			Record:     custody.NewPublicRecordDTO(*outcome.Record, nil),
		})
	}
}

func linkTokenParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "linkToken"))
}

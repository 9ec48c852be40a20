package controllers

import (
	"net/http"

	"github.com/angelmondragon/cautela-backend/api/middleware"
	"github.com/angelmondragon/cautela-backend/api/responses"
	"github.com/angelmondragon/cautela-backend/api/validators"
	"github.com/angelmondragon/cautela-backend/internal/operators"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

type createOperatorRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=64"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin operator"`
}

type updateOperatorRequest struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin operator"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type setPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

func AdminListOperators(svc operators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operators service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminGetOperator(svc operators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operators service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "operatorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operator, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, operator)
	}
}

func AdminCreateOperator(svc operators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operators service unavailable"))
			return
		}
		var body createOperatorRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := operators.CreateOperatorInput{
			Username: validators.SanitizeString(body.Username, 64),
			Email:    validators.SanitizeString(body.Email, 320),
			Password: body.Password,
			FullName: validators.OptionalString(body.FullName, maxNameLength),
			Role:     roleFromRequest(body.Role),
		}
		operator, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, operator)
	}
}

// AdminUpdateOperator applies a partial update. Admins cannot demote or
// deactivate themselves.
func AdminUpdateOperator(svc operators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operators service unavailable"))
			return
		}
		actorID, ok := middleware.OperatorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "operatorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateOperatorRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operator, err := svc.Update(r.Context(), actorID, id, operators.UpdateOperatorInput{
			Email:    body.Email,
			FullName: body.FullName,
			Role:     roleFromRequest(body.Role),
			IsActive: body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, operator)
	}
}

func AdminSetOperatorPassword(svc operators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operators service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "operatorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setPasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetPassword(r.Context(), id, body.Password); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func roleFromRequest(raw *string) *enums.OperatorRole {
	if raw == nil {
		return nil
	}
	role := enums.OperatorRole(*raw)
	return &role
}

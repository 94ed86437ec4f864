package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/api/responses"
	"github.com/aguardi/storefront-backend/api/validators"
	checkoutsvc "github.com/aguardi/storefront-backend/internal/checkout"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/logger"
)

// Checkout turns the submitted cart into an order with a pending payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutsvc.Request
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), actor, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// EstimateShipping prices delivery for a cart subtotal so the
// storefront can show the total before checkout.
func EstimateShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("subtotal"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subtotal is required"))
			return
		}
		subtotal, err := decimal.NewFromString(raw)
		if err != nil || subtotal.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be a non-negative decimal"))
			return
		}

		responses.WriteSuccess(w, svc.EstimateShipping(subtotal))
	}
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aguardi/storefront-backend/api/middleware"
	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

// actorFromRequest rebuilds the authenticated actor from the request context.
func actorFromRequest(r *http.Request) (orders.Actor, error) {
	rawID := middleware.UserIDFromContext(r.Context())
	if rawID == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}

	return orders.Actor{UserID: userID, Role: role}, nil
}

package validators

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// PaginationFromQuery reads page and limit query parameters, applying
// the catalog defaults when absent.
func PaginationFromQuery(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "page must be a positive integer")
		}
		params.Page = page
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = limit
	}
	return pagination.Normalize(params), nil
}

// UUIDFromPath parses a uuid path parameter value.
func UUIDFromPath(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

// StockValidationInput describes the data required to verify a line item's availability.
type StockValidationInput struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Quantity    int
}

// StockShortageDetail exposes the data returned to callers when a validation fails.
type StockShortageDetail struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	AvailableQty int       `json:"available_qty"`
	RequestedQty int       `json:"requested_qty"`
}

// ValidateStock ensures every provided line item can be covered by current
// inventory. The ledger re-checks atomically at reserve time; this is the
// early, user-facing rejection with per-item detail.
func ValidateStock(items []StockValidationInput) error {
	var shortages []StockShortageDetail
	for _, item := range items {
		if item.Quantity <= item.Available {
			continue
		}
		shortages = append(shortages, StockShortageDetail{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			AvailableQty: item.Available,
			RequestedQty: item.Quantity,
		})
	}
	if len(shortages) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %d item(s)", len(shortages))).WithDetails(map[string]any{
		"shortages": shortages,
	})
}

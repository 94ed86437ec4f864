package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

// Ledger applies stock movements against the products table. Every call
// runs inside the caller's transaction so reservations commit or roll
// back together with the order that triggered them.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve decrements stock for a product. The decrement is conditional
// on enough stock remaining, so concurrent checkouts racing for the
// last unit cannot drive stock_quantity below zero.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	if tx == nil {
		return fmt.Errorf("inventory reserve requires a transaction")
	}
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = ? AND stock_quantity >= ?`,
		quantity, productID, true, quantity,
	)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "reserve stock")
	}
	if result.RowsAffected == 0 {
		return l.reserveFailure(ctx, tx, productID, quantity)
	}
	return nil
}

// reserveFailure distinguishes a missing product from one that is
// inactive or short on stock, and names the product in the error.
func (l *Ledger) reserveFailure(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	var product models.Product
	err := tx.WithContext(ctx).First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"product_id":   productID.String(),
			"product_name": product.Name,
			"requested":    quantity,
			"available":    product.StockQuantity,
		})
}

// Release returns previously reserved stock, used when an order is
// cancelled before fulfillment.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	if tx == nil {
		return fmt.Errorf("inventory release requires a transaction")
	}
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		quantity, productID,
	)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "release stock")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	return nil
}

package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func seedProduct(t *testing.T, conn *gorm.DB, stock int, active bool) uuid.UUID {
	t.Helper()
	product := models.Product{
		SKU:           "SKU-" + uuid.NewString()[:8],
		Name:          "Widget",
		Price:         decimal.RequireFromString("10.00"),
		StockQuantity: stock,
		IsActive:      active,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product.StockQuantity
}

func TestReserveDecrementsStock(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 5, true)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, productID, 3)
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := stockOf(t, conn, productID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
}

func TestReserveRejectsOverdraw(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 5, true)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, productID, 6)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected detail map, got %T", typed.Details())
	}
	if details["product_name"] != "Widget" {
		t.Fatalf("expected product name in details, got %v", details["product_name"])
	}
	if details["available"] != 5 || details["requested"] != 6 {
		t.Fatalf("expected available 5 and requested 6, got %v", details)
	}
	if got := stockOf(t, conn, productID); got != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", got)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, uuid.New(), 1)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestReserveRejectsInactiveProduct(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 5, false)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, productID, 1)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
}

func TestReserveExactRemainder(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 2, true)
	ctx := context.Background()

	if err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, productID, 2)
	}); err != nil {
		t.Fatalf("reserve remainder: %v", err)
	}
	if got := stockOf(t, conn, productID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, productID, 1)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK on empty shelf, got %v", err)
	}
}

func TestReserveLastUnitUnderContention(t *testing.T) {
	conn := newTestDB(t)
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ledger := NewLedger()
	productID := seedProduct(t, conn, 1, true)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Transaction(func(tx *gorm.DB) error {
				return ledger.Reserve(context.Background(), tx, productID, 1)
			})
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("unexpected reserve error: %v", err)
		}
		lost++
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one reservation to win, got %d wins and %d shortages", won, lost)
	}
	if got := stockOf(t, conn, productID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestReleaseRestoresStock(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 5, true)
	ctx := context.Background()

	if err := conn.Transaction(func(tx *gorm.DB) error {
		if err := ledger.Reserve(ctx, tx, productID, 4); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(ctx, tx, productID, 4)
	}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := stockOf(t, conn, productID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestReleaseUnknownProduct(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(context.Background(), tx, uuid.New(), 1)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestQuantityValidation(t *testing.T) {
	conn := newTestDB(t)
	ledger := NewLedger()
	productID := seedProduct(t, conn, 5, true)
	ctx := context.Background()

	for _, qty := range []int{0, -2} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return ledger.Reserve(ctx, tx, productID, qty)
		})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected VALIDATION for qty %d, got %v", qty, err)
		}
	}
}

package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/inventory"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.ShippingInfo{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		TxRunner:  gormTxRunner{db: conn},
		Inventory: inventory.NewLedger(),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedOrder(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.OrderStatus, stock int) *models.Order {
	t.Helper()

	product := models.Product{
		SKU:           "SKU-" + uuid.NewString()[:8],
		Name:          "Widget",
		Price:         decimal.RequireFromString("25.00"),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order := models.Order{
		OrderNumber:  NewOrderNumber(time.Now()),
		UserID:       userID,
		Status:       status,
		Subtotal:     decimal.RequireFromString("50.00"),
		ShippingCost: decimal.RequireFromString("15.00"),
		TotalAmount:  decimal.RequireFromString("65.00"),
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    2,
			Subtotal:    decimal.RequireFromString("50.00"),
		}},
		ShippingInfo: &models.ShippingInfo{
			RecipientName: "Ana Guardi",
			Phone:         "555-0100",
			AddressLine1:  "Av. Siempre Viva 742",
			City:          "Springfield",
			State:         "SP",
			PostalCode:    "01000",
			Country:       "BR",
		},
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return &order
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var total int64
	err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", eventType).
		Count(&total).Error
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return total
}

func TestGetEnforcesOwnership(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusPending, 10)

	got, err := svc.Get(ctx, Actor{UserID: owner, Role: enums.UserRoleCustomer}, order.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if len(got.Items) != 1 || got.ShippingInfo == nil {
		t.Fatalf("expected items and shipping info preloaded, got %+v", got)
	}

	_, err = svc.Get(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for stranger, got %v", err)
	}

	if _, err := svc.Get(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, order.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
}

func TestGetByNumberEnforcesOwnership(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusPending, 10)

	got, err := svc.GetByNumber(ctx, Actor{UserID: owner, Role: enums.UserRoleCustomer}, order.OrderNumber)
	if err != nil {
		t.Fatalf("owner get by number: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("expected order %s, got %s", order.ID, got.ID)
	}

	_, err = svc.GetByNumber(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}, order.OrderNumber)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for stranger, got %v", err)
	}
}

func TestListScopesToCustomer(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	owner := uuid.New()
	seedOrder(t, conn, owner, enums.OrderStatusPending, 10)
	seedOrder(t, conn, uuid.New(), enums.OrderStatusPending, 10)

	page, err := svc.List(ctx, Actor{UserID: owner, Role: enums.UserRoleCustomer}, ListFilter{
		Pagination: pagination.Params{Page: 1, Limit: 10},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page.TotalItems != 1 {
		t.Fatalf("expected only own orders, got %d", page.Page.TotalItems)
	}

	adminPage, err := svc.List(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, ListFilter{
		Pagination: pagination.Params{Page: 1, Limit: 10},
	})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if adminPage.Page.TotalItems != 2 {
		t.Fatalf("expected all orders for admin, got %d", adminPage.Page.TotalItems)
	}
}

func TestUpdateStatusWalksLifecycle(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPaid, 10)

	notes := "left with the doorman"
	steps := []struct {
		to       enums.OrderStatus
		tracking *TrackingInput
		notes    *string
	}{
		{to: enums.OrderStatusProcessing},
		{to: enums.OrderStatusShipped, tracking: &TrackingInput{TrackingNumber: "BR123456789", Carrier: "correios"}},
		{to: enums.OrderStatusDelivered, notes: &notes},
	}
	var final *OrderDTO
	for _, step := range steps {
		updated, err := svc.UpdateStatus(ctx, admin, order.ID, step.to, step.tracking, step.notes)
		if err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
		if updated.Status != step.to {
			t.Fatalf("expected status %s, got %s", step.to, updated.Status)
		}
		final = updated
	}

	if final.ShippedAt == nil || final.DeliveredAt == nil {
		t.Fatalf("expected lifecycle timestamps stamped, got %+v", final)
	}
	if final.AdminNotes == nil || *final.AdminNotes != notes {
		t.Fatalf("expected admin notes persisted, got %+v", final.AdminNotes)
	}
	if final.ShippingInfo == nil || final.ShippingInfo.TrackingNumber == nil || *final.ShippingInfo.TrackingNumber != "BR123456789" {
		t.Fatalf("expected tracking number persisted, got %+v", final.ShippingInfo)
	}
	if final.ShippingInfo.Carrier == nil || *final.ShippingInfo.Carrier != "correios" {
		t.Fatalf("expected carrier persisted, got %+v", final.ShippingInfo)
	}

	if got := countEvents(t, conn, enums.EventOrderStatusChanged); got != 3 {
		t.Fatalf("expected 3 status events, got %d", got)
	}
}

func TestUpdateStatusRejectsTrackingBeforeShipment(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPaid, 10)

	_, err := svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusProcessing, &TrackingInput{
		TrackingNumber: "BR123456789",
		Carrier:        "correios",
	}, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	order := seedOrder(t, conn, uuid.New(), enums.OrderStatusPending, 10)

	_, err := svc.UpdateStatus(context.Background(), admin, order.ID, enums.OrderStatusShipped, nil, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusPaid, 10)

	_, err := svc.UpdateStatus(context.Background(), Actor{UserID: owner, Role: enums.UserRoleCustomer}, order.ID, enums.OrderStatusProcessing, nil, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestCancelRestoresInventoryOnce(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusPending, 8)
	actor := Actor{UserID: owner, Role: enums.UserRoleCustomer}

	cancelled, err := svc.Cancel(ctx, actor, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelled_at to be set")
	}

	var product models.Product
	if err := conn.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.StockQuantity)
	}

	_, err = svc.Cancel(ctx, actor, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT on second cancel, got %v", err)
	}
	if err := conn.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 10 {
		t.Fatalf("expected stock unchanged after repeat cancel, got %d", product.StockQuantity)
	}
}

func TestCancelRejectsShippedOrder(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusShipped, 10)

	_, err := svc.Cancel(context.Background(), Actor{UserID: owner, Role: enums.UserRoleCustomer}, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestCancelPaidOrderIsAdminOnly(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, conn, owner, enums.OrderStatusPaid, 8)

	_, err := svc.Cancel(ctx, Actor{UserID: owner, Role: enums.UserRoleCustomer}, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION for customer cancel of paid order, got %v", err)
	}

	var product models.Product
	if err := conn.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 8 {
		t.Fatalf("expected stock untouched, got %d", product.StockQuantity)
	}

	cancelled, err := svc.Cancel(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, order.ID)
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if err := conn.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.StockQuantity)
	}
}

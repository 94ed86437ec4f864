package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	getPayment    func(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
	refundPayment func(ctx context.Context, paymentID string) error
}

func (f *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error) {
	if f.getPayment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gateway payment not found")
	}
	return f.getPayment(ctx, paymentID)
}

func (f *fakeGateway) RefundPayment(ctx context.Context, paymentID string) error {
	if f.refundPayment == nil {
		return nil
	}
	return f.refundPayment(ctx, paymentID)
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
		&models.Order{},
		&models.OrderItem{},
		&models.ShippingInfo{},
		&models.Payment{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, gw Gateway) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		PaymentRepo: NewRepository(conn),
		OrderRepo:   orders.NewRepository(conn),
		TxRunner:    gormTxRunner{db: conn},
		Gateway:     gw,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedOrderWithPayment(t *testing.T, conn *gorm.DB, orderStatus enums.OrderStatus, paymentStatus enums.PaymentStatus) (*models.Order, *models.Payment) {
	t.Helper()
	order := models.Order{
		OrderNumber:  orders.NewOrderNumber(time.Now()),
		UserID:       uuid.New(),
		Status:       orderStatus,
		Subtotal:     decimal.RequireFromString("55.00"),
		ShippingCost: decimal.RequireFromString("15.00"),
		TotalAmount:  decimal.RequireFromString("70.00"),
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	payment := models.Payment{
		OrderID: order.ID,
		Status:  paymentStatus,
		Method:  enums.PaymentMethodMercadoPago,
		Amount:  decimal.RequireFromString("70.00"),
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return &order, &payment
}

func orderStatusOf(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	if err := conn.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order.Status
}

func TestApplyGatewayStateApprovesPayment(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)

	dto, err := svc.ApplyGatewayState(ctx, payment.ID, &mercadopago.Payment{
		ID:                987654,
		Status:            "approved",
		StatusDetail:      "accredited",
		ExternalReference: order.OrderNumber,
		TransactionAmount: decimal.RequireFromString("70.00"),
		Payer:             mercadopago.Payer{Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if dto.Status != enums.PaymentStatusApproved {
		t.Fatalf("expected approved, got %s", dto.Status)
	}
	if dto.ExternalPaymentID == nil || *dto.ExternalPaymentID != "987654" {
		t.Fatalf("expected external id bound, got %v", dto.ExternalPaymentID)
	}
	if dto.ApprovedAt == nil {
		t.Fatal("expected approved_at set")
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusPaid {
		t.Fatalf("expected order paid, got %s", got)
	}

	var confirmed int64
	err = conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentConfirmed).
		Count(&confirmed).Error
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected one payment confirmed event, got %d", confirmed)
	}
}

func TestApplyGatewayStateIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)
	snapshot := &mercadopago.Payment{
		ID:                987654,
		Status:            "approved",
		StatusDetail:      "accredited",
		ExternalReference: order.OrderNumber,
	}

	if _, err := svc.ApplyGatewayState(ctx, payment.ID, snapshot); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := svc.ApplyGatewayState(ctx, payment.ID, snapshot); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var confirmed int64
	err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentConfirmed).
		Count(&confirmed).Error
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected replay to emit nothing, got %d events", confirmed)
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusPaid {
		t.Fatalf("expected order still paid, got %s", got)
	}
}

func TestApplyGatewayStateIgnoresStaleNotification(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)

	approved := &mercadopago.Payment{ID: 987654, Status: "approved", ExternalReference: order.OrderNumber}
	if _, err := svc.ApplyGatewayState(ctx, payment.ID, approved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stale := &mercadopago.Payment{ID: 987654, Status: "pending", ExternalReference: order.OrderNumber}
	dto, err := svc.ApplyGatewayState(ctx, payment.ID, stale)
	if err != nil {
		t.Fatalf("stale apply: %v", err)
	}
	if dto.Status != enums.PaymentStatusApproved {
		t.Fatalf("expected payment to stay approved, got %s", dto.Status)
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusPaid {
		t.Fatalf("expected order to stay paid, got %s", got)
	}
}

func TestApplyGatewayStateUnknownStatusStaysPending(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)

	dto, err := svc.ApplyGatewayState(context.Background(), payment.ID, &mercadopago.Payment{
		ID:                987654,
		Status:            "brand_new_status",
		ExternalReference: order.OrderNumber,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if dto.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending, got %s", dto.Status)
	}
	if dto.ExternalPaymentID == nil {
		t.Fatal("expected external id bound even for unknown status")
	}
}

func TestConfirmVerifiesOrderReference(t *testing.T) {
	conn := newTestDB(t)
	order, _ := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)
	gw := &fakeGateway{
		getPayment: func(_ context.Context, paymentID string) (*mercadopago.Payment, error) {
			return &mercadopago.Payment{ID: 111, Status: "approved", ExternalReference: "ORD-000000-OTHERONE"}, nil
		},
	}
	svc := newTestService(t, conn, gw)

	actor := orders.Actor{UserID: order.UserID, Role: enums.UserRoleCustomer}
	_, err := svc.Confirm(context.Background(), actor, order.ID, "111")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION for foreign reference, got %v", err)
	}
}

func TestConfirmAppliesApproval(t *testing.T) {
	conn := newTestDB(t)
	order, _ := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)
	gw := &fakeGateway{
		getPayment: func(_ context.Context, paymentID string) (*mercadopago.Payment, error) {
			return &mercadopago.Payment{
				ID:                222,
				Status:            "approved",
				ExternalReference: order.OrderNumber,
			}, nil
		},
	}
	svc := newTestService(t, conn, gw)

	actor := orders.Actor{UserID: order.UserID, Role: enums.UserRoleCustomer}
	dto, err := svc.Confirm(context.Background(), actor, order.ID, "222")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if dto.Status != enums.PaymentStatusApproved {
		t.Fatalf("expected approved, got %s", dto.Status)
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusPaid {
		t.Fatalf("expected order paid, got %s", got)
	}
}

func TestCancelOnlyPendingPayments(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, _ := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)
	actor := orders.Actor{UserID: order.UserID, Role: enums.UserRoleCustomer}

	dto, err := svc.Cancel(ctx, actor, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", dto.Status)
	}

	approvedOrder, _ := seedOrderWithPayment(t, conn, enums.OrderStatusPaid, enums.PaymentStatusApproved)
	_, err = svc.Cancel(ctx, orders.Actor{UserID: approvedOrder.UserID, Role: enums.UserRoleCustomer}, approvedOrder.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestRefundDeliveredOrder(t *testing.T) {
	conn := newTestDB(t)

	var refundedID string
	gw := &fakeGateway{
		refundPayment: func(_ context.Context, paymentID string) error {
			refundedID = paymentID
			return nil
		},
	}
	svc := newTestService(t, conn, gw)
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusDelivered, enums.PaymentStatusApproved)
	externalID := "987654"
	err := conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("external_payment_id", externalID).Error
	if err != nil {
		t.Fatalf("bind external id: %v", err)
	}

	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	dto, err := svc.Refund(ctx, admin, order.ID, "damaged in transit")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if dto.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", dto.Status)
	}
	if dto.RefundedAt == nil {
		t.Fatal("expected refunded_at set")
	}
	if dto.StatusDetail == nil || *dto.StatusDetail != "damaged in transit" {
		t.Fatalf("expected refund reason recorded, got %+v", dto.StatusDetail)
	}
	if refundedID != externalID {
		t.Fatalf("expected gateway refund of %s, got %s", externalID, refundedID)
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusRefunded {
		t.Fatalf("expected order refunded, got %s", got)
	}
}

func TestRefundRequiresAdmin(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPaid, enums.PaymentStatusApproved)
	err := conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("external_payment_id", "111").Error
	if err != nil {
		t.Fatalf("bind external id: %v", err)
	}

	_, err = svc.Refund(ctx, orders.Actor{UserID: order.UserID, Role: enums.UserRoleCustomer}, order.ID, "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestRefundPaidOrderBeforeFulfillment(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPaid, enums.PaymentStatusApproved)
	err := conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("external_payment_id", "111").Error
	if err != nil {
		t.Fatalf("bind external id: %v", err)
	}

	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	dto, err := svc.Refund(ctx, admin, order.ID, "buyer remorse")
	if err != nil {
		t.Fatalf("refund paid order: %v", err)
	}
	if dto.Status != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got %s", dto.Status)
	}
	if got := orderStatusOf(t, conn, order.ID); got != enums.OrderStatusRefunded {
		t.Fatalf("expected order forced to refunded, got %s", got)
	}
}

func TestRefundRejectsUnsettledPayment(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	order, payment := seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)
	err := conn.Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Update("external_payment_id", "222").Error
	if err != nil {
		t.Fatalf("bind external id: %v", err)
	}

	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	_, err = svc.Refund(ctx, admin, order.ID, "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT for pending payment, got %v", err)
	}
}

func TestListFiltersByStatusForAdmin(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	seedOrderWithPayment(t, conn, enums.OrderStatusPaid, enums.PaymentStatusApproved)
	seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)

	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	approved := enums.PaymentStatusApproved
	page, err := svc.List(ctx, admin, ListFilter{
		Status:     &approved,
		Pagination: pagination.Params{Page: 1, Limit: 10},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page.TotalItems != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one approved payment, got %+v", page.Page)
	}
	if page.Items[0].Status != enums.PaymentStatusApproved {
		t.Fatalf("expected approved payment, got %s", page.Items[0].Status)
	}

	_, err = svc.List(ctx, orders.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}, ListFilter{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestStatsAggregatesRevenue(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{})
	ctx := context.Background()

	now := time.Now().UTC()
	_, recent := seedOrderWithPayment(t, conn, enums.OrderStatusPaid, enums.PaymentStatusApproved)
	err := conn.Model(&models.Payment{}).
		Where("id = ?", recent.ID).
		Update("approved_at", now).Error
	if err != nil {
		t.Fatalf("stamp recent approval: %v", err)
	}

	_, old := seedOrderWithPayment(t, conn, enums.OrderStatusDelivered, enums.PaymentStatusApproved)
	err = conn.Model(&models.Payment{}).
		Where("id = ?", old.ID).
		Update("approved_at", now.AddDate(-1, 0, 0)).Error
	if err != nil {
		t.Fatalf("stamp old approval: %v", err)
	}

	seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusRejected)
	seedOrderWithPayment(t, conn, enums.OrderStatusPending, enums.PaymentStatusPending)

	stats, err := svc.Stats(ctx, orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.TotalRevenue.Equal(decimal.RequireFromString("140.00")) {
		t.Fatalf("expected total revenue 140.00, got %s", stats.TotalRevenue)
	}
	if !stats.MonthlyRevenue.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("expected monthly revenue 70.00, got %s", stats.MonthlyRevenue)
	}
	if stats.TotalPayments != 4 || stats.ApprovedPayments != 2 {
		t.Fatalf("expected 4 payments with 2 approved, got %d/%d", stats.TotalPayments, stats.ApprovedPayments)
	}
	if stats.ApprovalRate != 0.5 {
		t.Fatalf("expected approval rate 0.5, got %f", stats.ApprovalRate)
	}

	_, err = svc.Stats(ctx, orders.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

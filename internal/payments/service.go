package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/outbox/payloads"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// Gateway is the slice of the payment provider the service needs.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
	RefundPayment(ctx context.Context, paymentID string) error
}

// Service defines payment operations exposed to controllers and to the
// webhook reconciler.
type Service interface {
	GetByOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*PaymentDTO, error)
	Confirm(ctx context.Context, actor orders.Actor, orderID uuid.UUID, externalPaymentID string) (*PaymentDTO, error)
	Cancel(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*PaymentDTO, error)
	Refund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*PaymentDTO, error)
	List(ctx context.Context, actor orders.Actor, filter ListFilter) (*PaymentPage, error)
	Stats(ctx context.Context, actor orders.Actor) (*StatsDTO, error)
	ApplyGatewayState(ctx context.Context, paymentID uuid.UUID, gw *mercadopago.Payment) (*PaymentDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	payments Repository
	orders   orders.Repository
	tx       txRunner
	gateway  Gateway
	outbox   outboxEmitter
	logg     *logger.Logger
}

// ServiceParams bundles the dependencies required to build a payments service.
type ServiceParams struct {
	PaymentRepo Repository
	OrderRepo   orders.Repository
	TxRunner    txRunner
	Gateway     Gateway
	Outbox      outboxEmitter
	Logger      *logger.Logger
}

// NewService constructs a payments service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	return &service{
		payments: params.PaymentRepo,
		orders:   params.OrderRepo,
		tx:       params.TxRunner,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *service) GetByOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*PaymentDTO, error) {
	if _, err := s.loadVisibleOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	payment, err := s.loadByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return FromModel(payment), nil
}

// Confirm resolves the gateway payment the customer returned with and
// applies its state. It is the synchronous counterpart of the webhook
// reconciler.
func (s *service) Confirm(ctx context.Context, actor orders.Actor, orderID uuid.UUID, externalPaymentID string) (*PaymentDTO, error) {
	order, err := s.loadVisibleOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := s.loadByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	gw, err := s.gateway.GetPayment(ctx, externalPaymentID)
	if err != nil {
		return nil, err
	}
	if gw.ExternalReference != order.OrderNumber {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to this order")
	}

	return s.ApplyGatewayState(ctx, payment.ID, gw)
}

// Cancel voids a payment that never reached the gateway. Approved
// payments must go through Refund instead.
func (s *service) Cancel(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*PaymentDTO, error) {
	if _, err := s.loadVisibleOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	payment, err := s.loadByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsPending() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending payments can be cancelled").
			WithDetails(map[string]any{"status": payment.Status.String()})
	}

	err = s.payments.Update(ctx, payment.ID, map[string]any{"status": enums.PaymentStatusCancelled})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel payment")
	}
	payment, err = s.payments.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}
	return FromModel(payment), nil
}

// Refund pushes a full refund through the gateway and forces the order
// to refunded. The admin override skips the usual lifecycle walk: any
// approved payment can be refunded regardless of how far fulfillment got.
func (s *service) Refund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*PaymentDTO, error) {
	if actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := s.loadByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanBeRefunded() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be refunded").
			WithDetails(map[string]any{"status": payment.Status.String()})
	}
	if payment.ExternalPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference")
	}

	if err := s.gateway.RefundPayment(ctx, *payment.ExternalPaymentID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txPayments := s.payments.WithTx(tx)
		updates := map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"refunded_at": now,
		}
		if reason != "" {
			updates["status_detail"] = reason
		}
		if err := txPayments.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment refunded")
		}
		return s.transitionOrder(ctx, tx, order, enums.OrderStatusRefunded)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "payment refunded")
	}
	payment, err = s.payments.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}
	return FromModel(payment), nil
}

// List pages through payments for the admin dashboard.
func (s *service) List(ctx context.Context, actor orders.Actor, filter ListFilter) (*PaymentPage, error) {
	if actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	rows, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return &PaymentPage{
		Items: fromModels(rows),
		Page:  pagination.PageFor(filter.Pagination, total),
	}, nil
}

// Stats aggregates revenue and approval counters for the admin dashboard.
func (s *service) Stats(ctx context.Context, actor orders.Actor) (*StatsDTO, error) {
	if actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	row, err := s.payments.Stats(ctx, monthStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate payment stats")
	}

	dto := &StatsDTO{
		TotalRevenue:     row.TotalRevenue,
		MonthlyRevenue:   row.MonthlyRevenue,
		TotalPayments:    row.TotalPayments,
		ApprovedPayments: row.ApprovedPayments,
	}
	if row.TotalPayments > 0 {
		dto.ApprovalRate = float64(row.ApprovedPayments) / float64(row.TotalPayments)
	}
	return dto, nil
}

// statusRank orders payment statuses so stale gateway notifications can
// never move a payment backwards. Equal rank never overwrites, a retry
// that succeeds (approved after rejected) does.
var statusRank = map[enums.PaymentStatus]int{
	enums.PaymentStatusPending:     0,
	enums.PaymentStatusInProcess:   1,
	enums.PaymentStatusRejected:    2,
	enums.PaymentStatusCancelled:   2,
	enums.PaymentStatusApproved:    3,
	enums.PaymentStatusRefunded:    4,
	enums.PaymentStatusChargedBack: 4,
}

func shouldAdvance(current, next enums.PaymentStatus) bool {
	return statusRank[next] > statusRank[current]
}

// ApplyGatewayState reconciles a gateway payment snapshot into our
// records. The operation is idempotent and tolerates notifications
// arriving out of order.
func (s *service) ApplyGatewayState(ctx context.Context, paymentID uuid.UUID, gw *mercadopago.Payment) (*PaymentDTO, error) {
	if gw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment is required")
	}
	mapped, known := MapGatewayStatus(gw.Status)
	if !known && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "gateway_status", gw.Status)
		s.logg.Warn(logCtx, "unrecognized gateway payment status")
	}

	var result *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txPayments := s.payments.WithTx(tx)
		payment, err := txPayments.FindByID(ctx, paymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}

		updates := map[string]any{}
		externalID := gw.ExternalID()
		if payment.ExternalPaymentID == nil {
			updates["external_payment_id"] = externalID
		}
		if gw.StatusDetail != "" && (payment.StatusDetail == nil || *payment.StatusDetail != gw.StatusDetail) {
			updates["status_detail"] = gw.StatusDetail
		}
		if gw.Payer.Email != "" && payment.PayerEmail == nil {
			updates["payer_email"] = gw.Payer.Email
		}

		advanced := shouldAdvance(payment.Status, mapped)
		if advanced {
			updates["status"] = mapped
			now := time.Now().UTC()
			switch {
			case mapped.IsSuccessful():
				updates["approved_at"] = now
			case mapped.IsRejected():
				updates["rejected_at"] = now
			case mapped == enums.PaymentStatusRefunded, mapped == enums.PaymentStatusChargedBack:
				updates["refunded_at"] = now
			}
		}

		if len(updates) > 0 {
			if err := txPayments.Update(ctx, payment.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
			}
		}

		if advanced {
			if err := s.applyOrderEffect(ctx, tx, payment, mapped, externalID); err != nil {
				return err
			}
		}

		result, err = txPayments.FindByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(result), nil
}

// applyOrderEffect mirrors a payment advance onto the order lifecycle.
// Transitions that are not allowed from the order's current status are
// skipped rather than failed, duplicate notifications land here too.
func (s *service) applyOrderEffect(ctx context.Context, tx *gorm.DB, payment *models.Payment, status enums.PaymentStatus, externalID string) error {
	var target enums.OrderStatus
	switch status {
	case enums.PaymentStatusApproved:
		target = enums.OrderStatusPaid
	case enums.PaymentStatusRefunded, enums.PaymentStatusChargedBack:
		target = enums.OrderStatusRefunded
	default:
		return nil
	}

	order, err := s.orders.WithTx(tx).FindByID(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !orders.CanTransition(order.Status, target) {
		return nil
	}
	if err := s.transitionOrder(ctx, tx, order, target); err != nil {
		return err
	}

	if status == enums.PaymentStatusApproved {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Data: payloads.PaymentConfirmedEvent{
				PaymentID:         payment.ID,
				OrderID:           payment.OrderID,
				ExternalPaymentID: externalID,
				Status:            status,
				Amount:            payment.Amount,
			},
		})
	}
	return nil
}

func (s *service) transitionOrder(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus) error {
	stamps := orders.TransitionStamps(to, time.Now().UTC())
	affected, err := s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, to, stamps)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			FromStatus:  order.Status,
			ToStatus:    to,
		},
	})
}

func (s *service) loadVisibleOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.UserRoleAdmin && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) loadByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	return payment, nil
}

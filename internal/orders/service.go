package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/outbox/payloads"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// Actor identifies the caller performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) isAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Service defines order lifecycle operations exposed to controllers.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	GetByNumber(ctx context.Context, actor Actor, orderNumber string) (*OrderDTO, error)
	List(ctx context.Context, actor Actor, filter ListFilter) (*OrderPage, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, to enums.OrderStatus, tracking *TrackingInput, adminNotes *string) (*OrderDTO, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventoryReleaser
	outbox    outboxEmitter
	logg      *logger.Logger
}

// ServiceParams bundles the dependencies required to build an orders service.
type ServiceParams struct {
	Repo      Repository
	TxRunner  txRunner
	Inventory inventoryReleaser
	Outbox    outboxEmitter
	Logger    *logger.Logger
}

// NewService constructs an orders service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.TxRunner,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		logg:      params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return FromModel(order), nil
}

func (s *service) GetByNumber(ctx context.Context, actor Actor, orderNumber string) (*OrderDTO, error) {
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !actor.isAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return FromModel(order), nil
}

func (s *service) List(ctx context.Context, actor Actor, filter ListFilter) (*OrderPage, error) {
	var scope *uuid.UUID
	if !actor.isAdmin() {
		userID := actor.UserID
		scope = &userID
	}
	rows, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return &OrderPage{
		Items: fromModels(rows),
		Page:  pagination.PageFor(filter.Pagination, total),
	}, nil
}

// UpdateStatus applies an admin driven forward transition, optionally
// recording internal notes. Cancellation goes through Cancel so
// inventory is restored.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, to enums.OrderStatus, tracking *TrackingInput, adminNotes *string) (*OrderDTO, error) {
	if !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if to == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel an order")
	}
	if tracking != nil && to != enums.OrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking details only apply when marking an order shipped")
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(order.Status, to); err != nil {
		return nil, err
	}

	var extra map[string]any
	if adminNotes != nil {
		extra = map[string]any{"admin_notes": *adminNotes}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transition(ctx, tx, order, to, extra); err != nil {
			return err
		}
		if tracking != nil {
			if err := s.repo.WithTx(tx).UpdateTracking(ctx, order.ID, tracking.TrackingNumber, tracking.Carrier); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record tracking details")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, orderID)
}

// Cancel moves a cancellable order to cancelled and returns its reserved
// stock. Customers may only cancel before payment settles or while the
// order is being prepared; admins can cancel anything the lifecycle
// table allows. The conditional status update guarantees stock is
// released at most once even when two cancellations race.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(order.Status, enums.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if !actor.isAdmin() && order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusProcessing {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status.String()})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transition(ctx, tx, order, enums.OrderStatusCancelled, nil); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
	}
	return s.Get(ctx, actor, orderID)
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, extra map[string]any) error {
	updates := TransitionStamps(to, time.Now().UTC())
	for column, value := range extra {
		if updates == nil {
			updates = map[string]any{}
		}
		updates[column] = value
	}
	txRepo := s.repo.WithTx(tx)
	affected, err := txRepo.UpdateStatus(ctx, order.ID, order.Status, to, updates)
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

func (s *service) loadVisible(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.isAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

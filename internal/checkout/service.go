package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/catalog"
	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/internal/payments"
	checkoutrules "github.com/aguardi/storefront-backend/pkg/checkout"
	"github.com/aguardi/storefront-backend/pkg/config"
	"github.com/aguardi/storefront-backend/pkg/db"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/outbox/payloads"
)

const orderNumberRetries = 3

// Gateway is the slice of the payment provider checkout needs.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
}

// Service runs the checkout flow.
type Service interface {
	Execute(ctx context.Context, actor orders.Actor, req Request) (*Result, error)
	EstimateShipping(subtotal decimal.Decimal) ShippingEstimate
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inventoryLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type service struct {
	catalog   catalog.Repository
	orders    orders.Repository
	payments  payments.Repository
	users     userFinder
	inventory inventoryLedger
	tx        txRunner
	gateway   Gateway
	outbox    outboxEmitter
	logg      *logger.Logger

	freeShippingAt  decimal.Decimal
	shippingCost    decimal.Decimal
	backURLs        mercadopago.BackURLs
	notificationURL string
}

// ServiceParams bundles the dependencies required to build a checkout service.
type ServiceParams struct {
	CatalogRepo catalog.Repository
	OrderRepo   orders.Repository
	PaymentRepo payments.Repository
	UserRepo    userFinder
	Inventory   inventoryLedger
	TxRunner    txRunner
	Gateway     Gateway
	Outbox      outboxEmitter
	Logger      *logger.Logger
	Shipping    config.ShippingConfig
	MercadoPago config.MercadoPagoConfig
}

// NewService constructs the checkout orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.CatalogRepo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger is required")
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

	freeShippingAt, err := decimal.NewFromString(params.Shipping.FreeThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid free shipping threshold %q: %w", params.Shipping.FreeThreshold, err)
	}
	shippingCost, err := decimal.NewFromString(params.Shipping.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("invalid default shipping cost %q: %w", params.Shipping.DefaultCost, err)
	}

	return &service{
		catalog:        params.CatalogRepo,
		orders:         params.OrderRepo,
		payments:       params.PaymentRepo,
		users:          params.UserRepo,
		inventory:      params.Inventory,
		tx:             params.TxRunner,
		gateway:        params.Gateway,
		outbox:         params.Outbox,
		logg:           params.Logger,
		freeShippingAt: freeShippingAt,
		shippingCost:   shippingCost,
		backURLs: mercadopago.BackURLs{
			Success: params.MercadoPago.SuccessURL,
			Failure: params.MercadoPago.FailureURL,
			Pending: params.MercadoPago.PendingURL,
		},
		notificationURL: params.MercadoPago.NotificationURL,
	}, nil
}

type pricedLine struct {
	product  models.Product
	quantity int
	subtotal decimal.Decimal
}

// Execute validates the buyer and the cart, reserves stock, creates the
// order with its payment in one transaction and then registers the
// gateway preference. A gateway failure after commit rolls the order
// back by cancelling it and releasing the reserved stock.
func (s *service) Execute(ctx context.Context, actor orders.Actor, req Request) (*Result, error) {
	if err := s.resolveUser(ctx, actor.UserID); err != nil {
		return nil, err
	}

	lines, err := s.priceCart(ctx, req)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.subtotal)
	}
	shippingCost := s.EstimateShipping(subtotal).ShippingCost
	// Discount is always zero at creation. The total is still computed
	// as subtotal + shipping - discount.
	discount := decimal.Zero
	total := subtotal.Add(shippingCost).Sub(discount)

	order, payment, err := s.commitOrder(ctx, actor, req, lines, subtotal, shippingCost, discount, total)
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "checkout committed")
	}

	pref, err := s.createPreference(ctx, order, lines)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(logCtx, "gateway preference failed, rolling back order", err)
		}
		return nil, multierr.Append(err, s.rollbackOrder(ctx, order, payment))
	}

	err = s.payments.Update(ctx, payment.ID, map[string]any{
		"preference_id": pref.ID,
		"init_point":    pref.InitPoint,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store preference")
	}

	finalOrder, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	finalPayment, err := s.payments.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}

	return &Result{
		Order:   orders.FromModel(finalOrder),
		Payment: payments.FromModel(finalPayment),
	}, nil
}

// EstimateShipping prices delivery for a cart subtotal. Shipping is
// free once the subtotal reaches the configured threshold.
func (s *service) EstimateShipping(subtotal decimal.Decimal) ShippingEstimate {
	cost := s.shippingCost
	free := subtotal.GreaterThanOrEqual(s.freeShippingAt)
	if free {
		cost = decimal.Zero
	}
	return ShippingEstimate{
		Subtotal:       subtotal,
		ShippingCost:   cost,
		FreeShippingAt: s.freeShippingAt,
		FreeShipping:   free,
	}
}

// priceCart loads and validates every requested product, merging
// duplicate lines, and prices each line at current catalog prices.
func (s *service) priceCart(ctx context.Context, req Request) ([]pricedLine, error) {
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}

	quantities := map[uuid.UUID]int{}
	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := map[uuid.UUID]models.Product{}
	for _, product := range products {
		byID[product.ID] = product
	}

	stockInputs := make([]checkoutrules.StockValidationInput, 0, len(ids))
	lines := make([]pricedLine, 0, len(ids))
	for _, id := range ids {
		product, ok := byID[id]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
				WithDetails(map[string]any{"product_id": id.String()})
		}
		quantity := quantities[id]
		stockInputs = append(stockInputs, checkoutrules.StockValidationInput{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Quantity:    quantity,
		})
		lines = append(lines, pricedLine{
			product:  product,
			quantity: quantity,
			subtotal: product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		})
	}

	if err := checkoutrules.ValidateStock(stockInputs); err != nil {
		return nil, err
	}
	return lines, nil
}

// resolveUser confirms the acting user still exists before any stock is
// touched. Tokens can outlive their account.
func (s *service) resolveUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}
	return nil
}

func (s *service) commitOrder(ctx context.Context, actor orders.Actor, req Request, lines []pricedLine, subtotal, shippingCost, discount, total decimal.Decimal) (*models.Order, *models.Payment, error) {
	var (
		order   *models.Order
		payment *models.Payment
	)

	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		order = buildOrder(actor.UserID, req, lines, subtotal, shippingCost, discount, total)
		payment = nil

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			for _, line := range lines {
				if err := s.inventory.Reserve(ctx, tx, line.product.ID, line.quantity); err != nil {
					return err
				}
			}
			if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
				if db.IsUniqueViolation(err, "idx_orders_order_number") {
					return errOrderNumberTaken
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
			}

			payment = &models.Payment{
				OrderID: order.ID,
				Status:  enums.PaymentStatusPending,
				Method:  enums.PaymentMethodMercadoPago,
				Amount:  total,
			}
			if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
				if db.IsUniqueViolation(err, "idx_payments_order_id") {
					return pkgerrors.New(pkgerrors.CodeConflict, "order already has a payment")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
			}

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
				Version:       1,
				Data: payloads.OrderCreatedEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					UserID:      actor.UserID,
					TotalAmount: total,
					ItemCount:   len(lines),
				},
			})
		})
		if err == nil {
			return order, payment, nil
		}
		if errors.Is(err, errOrderNumberTaken) {
			continue
		}
		return nil, nil, err
	}
	return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate order number")
}

var errOrderNumberTaken = errors.New("order number taken")

func buildOrder(userID uuid.UUID, req Request, lines []pricedLine, subtotal, shippingCost, discount, total decimal.Decimal) *models.Order {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID:   line.product.ID,
			ProductName: line.product.Name,
			ImageURL:    line.product.ImageURL,
			UnitPrice:   line.product.Price,
			Quantity:    line.quantity,
			Subtotal:    line.subtotal,
		})
	}
	shipping := req.Shipping
	return &models.Order{
		OrderNumber:   orders.NewOrderNumber(time.Now()),
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		Subtotal:      subtotal,
		ShippingCost:  shippingCost,
		Discount:      discount,
		TotalAmount:   total,
		CustomerNotes: req.Notes,
		Items:         items,
		ShippingInfo: &models.ShippingInfo{
			RecipientName: shipping.RecipientName,
			Phone:         shipping.Phone,
			AddressLine1:  shipping.AddressLine1,
			AddressLine2:  shipping.AddressLine2,
			City:          shipping.City,
			State:         shipping.State,
			PostalCode:    shipping.PostalCode,
			Country:       shipping.Country,
		},
	}
}

func (s *service) createPreference(ctx context.Context, order *models.Order, lines []pricedLine) (*mercadopago.Preference, error) {
	items := make([]mercadopago.PreferenceItem, 0, len(lines)+1)
	for _, line := range lines {
		items = append(items, mercadopago.PreferenceItem{
			Title:     line.product.Name,
			Quantity:  line.quantity,
			UnitPrice: line.product.Price,
		})
	}
	if order.ShippingCost.IsPositive() {
		items = append(items, mercadopago.PreferenceItem{
			Title:     "Shipping",
			Quantity:  1,
			UnitPrice: order.ShippingCost,
		})
	}
	backURLs := s.backURLs
	return s.gateway.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items:             items,
		ExternalReference: order.OrderNumber,
		BackURLs:          &backURLs,
		AutoReturn:        "approved",
		NotificationURL:   s.notificationURL,
	})
}

// rollbackOrder compensates a committed order whose gateway preference
// could not be created: reserved stock goes back and the order lands in
// cancelled so it never shows up as payable.
func (s *service) rollbackOrder(ctx context.Context, order *models.Order, payment *models.Payment) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		affected, err := s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{"cancelled_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed during rollback")
		}
		return s.payments.WithTx(tx).Update(ctx, payment.ID, map[string]any{
			"status": enums.PaymentStatusCancelled,
		})
	})
}

package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/internal/payments"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/metrics"
)

const (
	// Source labels every webhook log row and metric emitted here.
	Source = "mercadopago"

	idempotencyTTL = 24 * time.Hour
)

// idempotencyGuard is the slice of the redis client the reconciler needs.
type idempotencyGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Reconciler turns at-least-once, possibly out-of-order gateway
// notifications into payment and order state. Every notification is
// logged before any processing, and processing failures never bubble to
// the gateway: the HTTP handler always answers 200 so retries keep the
// original payload flowing.
type Reconciler struct {
	logs     LogRepository
	payments payments.Repository
	orders   orders.Repository
	applier  payments.Service
	gateway  payments.Gateway
	guard    idempotencyGuard
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
}

// ReconcilerParams bundles the dependencies required to build a Reconciler.
type ReconcilerParams struct {
	Logs        LogRepository
	PaymentRepo payments.Repository
	OrderRepo   orders.Repository
	Applier     payments.Service
	Gateway     payments.Gateway
	Guard       idempotencyGuard
	Metrics     *metrics.WebhookMetrics
	Logger      *logger.Logger
}

// NewReconciler constructs a webhook reconciler.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("payment applier is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	return &Reconciler{
		logs:     params.Logs,
		payments: params.PaymentRepo,
		orders:   params.OrderRepo,
		applier:  params.Applier,
		gateway:  params.Gateway,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Process handles one notification end to end. The returned error is
// informational for logging, callers still acknowledge the webhook.
func (r *Reconciler) Process(ctx context.Context, body json.RawMessage, notification Notification) error {
	start := time.Now()
	eventType := notification.EventType()
	r.metrics.IncReceived(Source, eventType)
	defer func() {
		r.metrics.ObserveDuration(Source, time.Since(start))
	}()

	entry := &models.WebhookLog{
		Source:    Source,
		EventType: eventType,
		Payload:   body,
	}
	if paymentID := notification.PaymentID(); paymentID != "" {
		entry.ExternalPaymentID = &paymentID
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		r.metrics.IncFailed(Source, eventType)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "log webhook")
	}

	if err := r.reconcile(ctx, notification); err != nil {
		r.metrics.IncFailed(Source, eventType)
		if markErr := r.logs.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil && r.logg != nil {
			r.logg.Error(ctx, "failed to record webhook failure", markErr)
		}
		return err
	}

	r.metrics.IncProcessed(Source, eventType)
	return r.logs.MarkProcessed(ctx, entry.ID)
}

func (r *Reconciler) reconcile(ctx context.Context, notification Notification) error {
	if !notification.IsPaymentEvent() {
		if r.logg != nil {
			logCtx := r.logg.WithField(ctx, "event_type", notification.EventType())
			r.logg.Info(logCtx, "ignoring non payment webhook")
		}
		return nil
	}

	externalID := notification.PaymentID()
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment notification without payment id")
	}

	release, duplicate, err := r.acquire(ctx, notification, externalID)
	if err != nil {
		return err
	}
	if duplicate {
		if r.logg != nil {
			r.logg.Info(r.logg.WithField(ctx, "external_payment_id", externalID), "duplicate webhook skipped")
		}
		return nil
	}

	if err := r.apply(ctx, externalID); err != nil {
		release()
		return err
	}
	return nil
}

// acquire takes the idempotency slot for this notification. The slot is
// released on failure so the gateway's retry can reprocess.
func (r *Reconciler) acquire(ctx context.Context, notification Notification, externalID string) (func(), bool, error) {
	if r.guard == nil {
		return func() {}, false, nil
	}
	slot := fmt.Sprintf("%s:%d:%s:%s", Source, notification.ID, notification.Action, externalID)
	key := r.guard.IdempotencyKey("webhook", slot)
	acquired, err := r.guard.SetNX(ctx, key, 1, idempotencyTTL)
	if err != nil {
		// Redis being down must not drop payment notifications, the
		// reconciliation itself is idempotent.
		if r.logg != nil {
			r.logg.Warn(ctx, "idempotency guard unavailable, processing anyway")
		}
		return func() {}, false, nil
	}
	if !acquired {
		return func() {}, true, nil
	}
	release := func() {
		if delErr := r.guard.Del(context.WithoutCancel(ctx), key); delErr != nil && r.logg != nil {
			r.logg.Warn(ctx, "failed to release idempotency slot")
		}
	}
	return release, false, nil
}

func (r *Reconciler) apply(ctx context.Context, externalID string) error {
	gw, err := r.gateway.GetPayment(ctx, externalID)
	if err != nil {
		return err
	}

	if _, known := payments.MapGatewayStatus(gw.Status); !known {
		r.metrics.IncUnknownStatus(Source, gw.Status)
	}

	payment, err := r.lookupPayment(ctx, externalID, gw.ExternalReference)
	if err != nil {
		return err
	}

	_, err = r.applier.ApplyGatewayState(ctx, payment.ID, gw)
	return err
}

// lookupPayment finds our payment record for a gateway payment. The
// external id is only bound after the first notification or confirm, so
// unresolved ids fall back to the order number the preference was
// created with.
func (r *Reconciler) lookupPayment(ctx context.Context, externalID, orderNumber string) (*models.Payment, error) {
	payment, err := r.payments.FindByExternalID(ctx, externalID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment")
	}

	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment matches gateway notification")
	}
	order, err := r.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order matches gateway reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order")
	}
	payment, err = r.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no payment record")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by order")
	}
	return payment, nil
}

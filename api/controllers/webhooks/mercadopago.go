package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/aguardi/storefront-backend/api/responses"
	mpwebhook "github.com/aguardi/storefront-backend/internal/webhooks/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/logger"
)

type MercadoPagoReconciler interface {
	Process(ctx context.Context, body json.RawMessage, notification mpwebhook.Notification) error
}

// MercadoPago receives payment notifications from the gateway.
//
// The endpoint always answers 200. Mercado Pago retries on non-2xx
// responses and a malformed or failing notification will never become
// processable by replaying it, so failures are logged and reconciled
// out of band instead.
func MercadoPago(reconciler MercadoPagoReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "webhook.read_body", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "received"})
			return
		}

		var notification mpwebhook.Notification
		if err := json.Unmarshal(payload, &notification); err != nil {
			if logg != nil {
				logg.Error(ctx, "webhook.decode", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "received"})
			return
		}

		if reconciler == nil {
			if logg != nil {
				logg.Warn(ctx, "webhook.reconciler_unavailable")
			}
			responses.WriteSuccess(w, map[string]string{"status": "received"})
			return
		}

		if err := reconciler.Process(ctx, payload, notification); err != nil {
			if logg != nil {
				logg.Error(ctx, "webhook.process", err)
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}

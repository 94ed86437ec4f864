package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aguardi/storefront-backend/api/controllers"
	webhookcontrollers "github.com/aguardi/storefront-backend/api/controllers/webhooks"
	"github.com/aguardi/storefront-backend/api/middleware"
	authsvc "github.com/aguardi/storefront-backend/internal/auth"
	"github.com/aguardi/storefront-backend/internal/catalog"
	checkoutsvc "github.com/aguardi/storefront-backend/internal/checkout"
	ordersvc "github.com/aguardi/storefront-backend/internal/orders"
	paymentsvc "github.com/aguardi/storefront-backend/internal/payments"
	"github.com/aguardi/storefront-backend/pkg/config"
	"github.com/aguardi/storefront-backend/pkg/db"
	"github.com/aguardi/storefront-backend/pkg/enums"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/redis"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     redis.Pinger
	Registry  *prometheus.Registry
	Auth      authsvc.Service
	Catalog   catalog.Service
	Orders    ordersvc.Service
	Payments  paymentsvc.Service
	Checkout  checkoutsvc.Service
	MPWebhook webhookcontrollers.MercadoPagoReconciler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mercadopago", webhookcontrollers.MercadoPago(deps.MPWebhook, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.Register(deps.Auth, logg))
		r.Post("/login", controllers.Login(deps.Auth, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(deps.Catalog, logg))
		r.Get("/{productID}", controllers.GetProduct(deps.Catalog, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
			r.Post("/", controllers.CreateProduct(deps.Catalog, logg))
			r.Patch("/{productID}", controllers.UpdateProduct(deps.Catalog, logg))
			r.Delete("/{productID}", controllers.DeactivateProduct(deps.Catalog, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		r.Get("/checkout/shipping-estimate", controllers.EstimateShipping(deps.Checkout, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
			r.Get("/", controllers.ListPayments(deps.Payments, logg))
			r.Get("/stats", controllers.PaymentStats(deps.Payments, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/number/{orderNumber}", controllers.GetOrderByNumber(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
				Patch("/{orderID}/status", controllers.UpdateOrderStatus(deps.Orders, logg))

			r.Route("/{orderID}/payment", func(r chi.Router) {
				r.Get("/", controllers.GetOrderPayment(deps.Payments, logg))
				r.Post("/confirm", controllers.ConfirmPayment(deps.Payments, logg))
				r.Post("/cancel", controllers.CancelPayment(deps.Payments, logg))
				r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
					Post("/refund", controllers.RefundPayment(deps.Payments, logg))
			})
		})
	})

	return r
}

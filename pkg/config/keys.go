package config

// EnvPrefix is empty because every variable already carries the
// STOREFRONT_ prefix in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"
	EnvJWTExp    = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID        = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrderTopic    = "STOREFRONT_PUBSUB_ORDER_EVENTS_TOPIC"
	EnvPubSubOrderSub      = "STOREFRONT_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"
	EnvMercadoPagoToken    = "STOREFRONT_MERCADOPAGO_ACCESS_TOKEN"
	EnvMercadoPagoBaseURL  = "STOREFRONT_MERCADOPAGO_BASE_URL"
	EnvShippingFreeMinimum = "STOREFRONT_SHIPPING_FREE_THRESHOLD"
	EnvShippingDefaultCost = "STOREFRONT_SHIPPING_DEFAULT_COST"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

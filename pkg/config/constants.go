package config

const (
	EnvPrefix = "MARKETLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "MARKETLEDGER_APP_ENV"
	EnvPort               = "MARKETLEDGER_APP_PORT"
	EnvDBDSN              = "MARKETLEDGER_DB_DSN"
	EnvDBHost             = "MARKETLEDGER_DB_HOST"
	EnvDBUser             = "MARKETLEDGER_DB_USER"
	EnvDBName             = "MARKETLEDGER_DB_NAME"
	EnvRedisURL           = "MARKETLEDGER_REDIS_URL"
	EnvJWTSecret          = "MARKETLEDGER_JWT_SECRET"
	EnvJWTIssuer          = "MARKETLEDGER_JWT_ISSUER"
	EnvWebhookSecret      = "MARKETLEDGER_PAYMENT_WEBHOOK_SECRET"
	EnvGCPProjectID       = "MARKETLEDGER_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic  = "MARKETLEDGER_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPayoutsTopic = "MARKETLEDGER_PUBSUB_PAYOUTS_TOPIC"
	EnvDefaultCommission  = "MARKETLEDGER_SETTLEMENT_DEFAULT_COMMISSION_RATE"
	EnvTaxRate            = "MARKETLEDGER_SETTLEMENT_TAX_RATE"
	EnvShippingFlat       = "MARKETLEDGER_SETTLEMENT_SHIPPING_FLAT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const (
	EnvPrefix = "KITCHENSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv    = "KITCHENSTOCK_APP_ENV"
	EnvPort      = "KITCHENSTOCK_APP_PORT"
	EnvLogLevel  = "KITCHENSTOCK_LOG_LEVEL"
	EnvLogFormat = "KITCHENSTOCK_LOG_FORMAT"

	EnvDBDSN  = "KITCHENSTOCK_DB_DSN"
	EnvDBHost = "KITCHENSTOCK_DB_HOST"
	EnvDBUser = "KITCHENSTOCK_DB_USER"
	EnvDBName = "KITCHENSTOCK_DB_NAME"

	EnvUseSQLite = "KITCHENSTOCK_USE_SQLITE"

	EnvRedisURL = "KITCHENSTOCK_REDIS_URL"

	EnvJWTSecret = "KITCHENSTOCK_JWT_SECRET"
	EnvJWTIssuer = "KITCHENSTOCK_JWT_ISSUER"

	EnvEngineCommitTimeout        = "KITCHENSTOCK_ENGINE_COMMIT_TIMEOUT"
	EnvEngineCompensationAttempts = "KITCHENSTOCK_ENGINE_COMPENSATION_ATTEMPTS"
	EnvEngineCascadeRetries       = "KITCHENSTOCK_ENGINE_CASCADE_RETRIES"

	EnvGCPProjectID = "KITCHENSTOCK_GCP_PROJECT_ID"

	EnvPubSubStockEventsTopic = "KITCHENSTOCK_PUBSUB_STOCK_EVENTS_TOPIC"
	EnvPubSubNotificationSub  = "KITCHENSTOCK_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvOutboxBatchSize   = "KITCHENSTOCK_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxMaxAttempts = "KITCHENSTOCK_OUTBOX_MAX_ATTEMPTS"

	EnvCORSOrigins = "KITCHENSTOCK_CORS_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

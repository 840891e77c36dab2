package config

// EnvPrefix is passed to envconfig; every field carries an explicit name so the
// prefix only matters for fields added without one.
const EnvPrefix = "FULFILLMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv           = "FULFILLMENT_APP_ENV"
	EnvPort             = "FULFILLMENT_APP_PORT"
	EnvDBDSN            = "FULFILLMENT_DB_DSN"
	EnvDBHost           = "FULFILLMENT_DB_HOST"
	EnvDBUser           = "FULFILLMENT_DB_USER"
	EnvDBName           = "FULFILLMENT_DB_NAME"
	EnvRedisURL         = "FULFILLMENT_REDIS_URL"
	EnvJWTSecret        = "FULFILLMENT_JWT_SECRET"
	EnvJWTIssuer        = "FULFILLMENT_JWT_ISSUER"
	EnvUseSQLite        = "FULFILLMENT_USE_SQLITE"
	EnvReturnWindowDays = "FULFILLMENT_RETURN_WINDOW_DAYS"
	EnvReadCacheTTL     = "FULFILLMENT_READ_CACHE_TTL"
	EnvGCPProjectID     = "FULFILLMENT_GCP_PROJECT_ID"
	EnvCORSOrigins      = "FULFILLMENT_CORS_ORIGINS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

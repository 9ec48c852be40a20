package config

const (
	EnvPrefix = "CAUTELA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "CAUTELA_APP_ENV"
	EnvPort       = "CAUTELA_APP_PORT"
	EnvDBDSN      = "CAUTELA_DB_DSN"
	EnvDBHost     = "CAUTELA_DB_HOST"
	EnvDBUser     = "CAUTELA_DB_USER"
	EnvDBName     = "CAUTELA_DB_NAME"
	EnvRedisURL   = "CAUTELA_REDIS_URL"
	EnvJWTSecret  = "CAUTELA_JWT_SECRET"
	EnvJWTIssuer  = "CAUTELA_JWT_ISSUER"
	EnvJWTExpMins = "CAUTELA_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID       = "CAUTELA_GCP_PROJECT_ID"
	EnvPubSubCustodyTopic = "CAUTELA_PUBSUB_CUSTODY_TOPIC"
	EnvCORSOrigins        = "CAUTELA_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

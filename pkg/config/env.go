package config

const (
	EnvPrefix = "SETTLEMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "SETTLEMENT_APP_ENV"
	EnvLogLevel  = "SETTLEMENT_LOG_LEVEL"
	EnvLogFormat = "SETTLEMENT_LOG_FORMAT"

	EnvDBDSN  = "SETTLEMENT_DB_DSN"
	EnvDBHost = "SETTLEMENT_DB_HOST"
	EnvDBUser = "SETTLEMENT_DB_USER"
	EnvDBName = "SETTLEMENT_DB_NAME"

	EnvRedisURL          = "SETTLEMENT_REDIS_URL"
	EnvGCPProjectID      = "SETTLEMENT_GCP_PROJECT_ID"
	EnvNotificationTopic = "SETTLEMENT_PUBSUB_NOTIFICATION_TOPIC"
	EnvCronInterval      = "SETTLEMENT_CRON_INTERVAL"

	EnvQuotaPrice            = "SETTLEMENT_QUOTA_PRICE"
	EnvLoanOriginationRate   = "SETTLEMENT_LOAN_ORIGINATION_RATE"
	EnvLoanFeeGuaranteeShare = "SETTLEMENT_LOAN_FEE_GUARANTEE_SHARE"
	EnvFeeTaxShare           = "SETTLEMENT_FEE_TAX_SHARE"
	EnvWithdrawalMinFee      = "SETTLEMENT_WITHDRAWAL_MIN_FEE"
	EnvGatewayCardRate       = "SETTLEMENT_GATEWAY_CARD_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvShopDomain          = "SHOPIFY_SHOP_DOMAIN"
	EnvStoreDomain         = "SHOPIFY_STORE_DOMAIN"
	EnvShopifyAPIVersion   = "SHOPIFY_API_VERSION"
	EnvShopifyToken        = "SHOPIFY_ACCESS_TOKEN"
	EnvShopifyAdminToken   = "SHOPIFY_ADMIN_ACCESS_TOKEN"
	EnvShopifyTokenParam   = "SHOPIFY_ACCESS_TOKEN_PARAM"
	EnvShopifyTokenSealed  = "SHOPIFY_ACCESS_TOKEN_ENC"
	EnvTokenKey            = "TOKEN_ENC_KEY_B64"
	EnvWebhookSecret       = "SHOPIFY_WEBHOOK_SECRET"
	EnvWebhookSecretParam  = "SHOPIFY_WEBHOOK_SECRET_PARAM"
	EnvKlaviyoKey          = "KLAVIYO_PRIVATE_API_KEY"
	EnvKlaviyoKeyParam     = "KLAVIYO_PRIVATE_API_KEY_PARAM"
	EnvKlaviyoInviteMetric = "KLAVIYO_INVITE_METRIC"

	EnvSiteURL          = "SITE_URL"
	EnvCORSOrigin       = "CORS_ALLOWED_ORIGIN"
	EnvStatusUpdaterURL = "STATUS_UPDATER_URL"

	EnvDedupeTable    = "SHOPIFY_WEBHOOK_DEDUPE_TABLE"
	EnvEventsTable    = "SHOWROOM_EVENTS_TABLE"
	EnvAlertsTopicArn = "SHOWROOM_ALERTS_TOPIC_ARN"
	EnvProductsBucket = "SHOWROOM_PRODUCTS_BUCKET"
	EnvProductsPrefix = "SHOWROOM_PRODUCTS_PREFIX"

	EnvWriteBatchSize    = "SHOWROOM_WRITE_BATCH_SIZE"
	EnvWriteBatchDelay   = "SHOWROOM_WRITE_BATCH_DELAY"
	EnvStatusConcurrency = "SHOWROOM_STATUS_CONCURRENCY"
	EnvInvitePolicy      = "SHOWROOM_INVITE_CUSTOMER_POLICY"
	EnvSyncPolicy        = "SHOWROOM_SYNC_CUSTOMER_POLICY"
)

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/kelseyhightower/envconfig"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/security"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type Config struct {
	App      AppConfig
	Shopify  ShopifyConfig
	Klaviyo  KlaviyoConfig
	Site     SiteConfig
	AWS      AWSConfig
	Showroom ShowroomConfig
}

// Load reads the environment. Secrets held in SSM or sealed with the token
// key are filled in later by Resolve.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.normalize()
	if _, err := cfg.Showroom.InvitePolicy(); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvInvitePolicy, err)
	}
	if _, err := cfg.Showroom.SyncPolicy(); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvSyncPolicy, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
}

type ShopifyConfig struct {
	ShopDomain       string `envconfig:"SHOPIFY_SHOP_DOMAIN"`
	StoreDomain      string `envconfig:"SHOPIFY_STORE_DOMAIN"`
	APIVersion       string `envconfig:"SHOPIFY_API_VERSION" default:"2024-10"`
	AccessToken      string `envconfig:"SHOPIFY_ACCESS_TOKEN"`
	AdminAccessToken string `envconfig:"SHOPIFY_ADMIN_ACCESS_TOKEN"`
	AccessTokenParam string `envconfig:"SHOPIFY_ACCESS_TOKEN_PARAM"`
	// AccessTokenSealed is base64url(nonce|ciphertext) under TokenKeyB64.
	AccessTokenSealed  string `envconfig:"SHOPIFY_ACCESS_TOKEN_ENC"`
	TokenKeyB64        string `envconfig:"TOKEN_ENC_KEY_B64"`
	WebhookSecret      string `envconfig:"SHOPIFY_WEBHOOK_SECRET"`
	WebhookSecretParam string `envconfig:"SHOPIFY_WEBHOOK_SECRET_PARAM"`
}

type KlaviyoConfig struct {
	PrivateAPIKey      string `envconfig:"KLAVIYO_PRIVATE_API_KEY"`
	PrivateAPIKeyParam string `envconfig:"KLAVIYO_PRIVATE_API_KEY_PARAM"`
	InviteMetric       string `envconfig:"KLAVIYO_INVITE_METRIC" default:"Bridal Party Invited"`
}

func (k KlaviyoConfig) Enabled() bool {
	return k.PrivateAPIKey != ""
}

type SiteConfig struct {
	URL               string `envconfig:"SITE_URL"`
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"*"`
	// StatusUpdaterURL is where register-webhooks points Shopify.
	StatusUpdaterURL string `envconfig:"STATUS_UPDATER_URL"`
}

type AWSConfig struct {
	WebhookDedupeTable string `envconfig:"SHOPIFY_WEBHOOK_DEDUPE_TABLE"`
	EventsTable        string `envconfig:"SHOWROOM_EVENTS_TABLE"`
	AlertsTopicArn     string `envconfig:"SHOWROOM_ALERTS_TOPIC_ARN"`
	ProductsBucket     string `envconfig:"SHOWROOM_PRODUCTS_BUCKET"`
	ProductsPrefix     string `envconfig:"SHOWROOM_PRODUCTS_PREFIX" default:"showrooms/"`
}

type ShowroomConfig struct {
	WriteBatchSize       int           `envconfig:"SHOWROOM_WRITE_BATCH_SIZE" default:"5"`
	WriteBatchDelay      time.Duration `envconfig:"SHOWROOM_WRITE_BATCH_DELAY" default:"100ms"`
	StatusConcurrency    int           `envconfig:"SHOWROOM_STATUS_CONCURRENCY" default:"5"`
	InviteCustomerPolicy string        `envconfig:"SHOWROOM_INVITE_CUSTOMER_POLICY" default:"create_if_absent"`
	SyncCustomerPolicy   string        `envconfig:"SHOWROOM_SYNC_CUSTOMER_POLICY" default:"create_if_absent"`
}

func (s ShowroomConfig) InvitePolicy() (showroom.CustomerPolicy, error) {
	return showroom.ParseCustomerPolicy(s.InviteCustomerPolicy)
}

func (s ShowroomConfig) SyncPolicy() (showroom.CustomerPolicy, error) {
	return showroom.ParseCustomerPolicy(s.SyncCustomerPolicy)
}

func (c *Config) normalize() {
	sh := &c.Shopify
	if strings.TrimSpace(sh.ShopDomain) == "" {
		sh.ShopDomain = sh.StoreDomain
	}
	sh.ShopDomain = NormalizeShopDomain(sh.ShopDomain)
	if strings.TrimSpace(sh.AccessToken) == "" {
		sh.AccessToken = sh.AdminAccessToken
	}
	sh.AccessToken = strings.TrimSpace(sh.AccessToken)
	sh.APIVersion = strings.TrimSpace(sh.APIVersion)
	c.Klaviyo.PrivateAPIKey = strings.TrimSpace(c.Klaviyo.PrivateAPIKey)
	c.Site.URL = strings.TrimRight(strings.TrimSpace(c.Site.URL), "/")
	if c.Showroom.WriteBatchSize <= 0 {
		c.Showroom.WriteBatchSize = showroom.DefaultBatchSize
	}
	if c.Showroom.WriteBatchDelay < 0 {
		c.Showroom.WriteBatchDelay = 0
	}
	if c.Showroom.StatusConcurrency <= 0 {
		c.Showroom.StatusConcurrency = showroom.DefaultStatusConcurrency
	}
}

// NormalizeShopDomain strips scheme and path and appends .myshopify.com to a
// bare shop handle.
func NormalizeShopDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if s != "" && !strings.Contains(s, ".") {
		s += ".myshopify.com"
	}
	return s
}

type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolve fills secrets that are referenced rather than inlined. Parameters
// are only read when the plain value is empty; params may be nil when no
// *_PARAM is set.
func (c *Config) Resolve(ctx context.Context, params ParameterStore) error {
	fetch := func(dst *string, name, env string) error {
		name = strings.TrimSpace(name)
		if *dst != "" || name == "" {
			return nil
		}
		if params == nil {
			return fmt.Errorf("%s is set but no parameter store is available", env)
		}
		out, err := params.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("get parameter %s: %w", name, err)
		}
		if out.Parameter != nil {
			*dst = strings.TrimSpace(aws.ToString(out.Parameter.Value))
		}
		return nil
	}

	if err := fetch(&c.Shopify.AccessToken, c.Shopify.AccessTokenParam, EnvShopifyTokenParam); err != nil {
		return err
	}
	if err := fetch(&c.Shopify.WebhookSecret, c.Shopify.WebhookSecretParam, EnvWebhookSecretParam); err != nil {
		return err
	}
	if err := fetch(&c.Klaviyo.PrivateAPIKey, c.Klaviyo.PrivateAPIKeyParam, EnvKlaviyoKeyParam); err != nil {
		return err
	}

	if c.Shopify.AccessToken == "" && c.Shopify.AccessTokenSealed != "" {
		tc, err := security.NewTokenCipher(c.Shopify.TokenKeyB64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTokenKey, err)
		}
		token, err := tc.Open(c.Shopify.AccessTokenSealed)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvShopifyTokenSealed, err)
		}
		c.Shopify.AccessToken = token
	}
	return nil
}

// NeedsParameterStore reports whether Resolve will read SSM.
func (c *Config) NeedsParameterStore() bool {
	return (c.Shopify.AccessToken == "" && c.Shopify.AccessTokenParam != "") ||
		(c.Shopify.WebhookSecret == "" && c.Shopify.WebhookSecretParam != "") ||
		(c.Klaviyo.PrivateAPIKey == "" && c.Klaviyo.PrivateAPIKeyParam != "")
}

// RequireShopify is checked by every function that talks to the Admin API.
func (c *Config) RequireShopify() error {
	var missing []string
	if c.Shopify.ShopDomain == "" {
		missing = append(missing, EnvShopDomain)
	}
	if c.Shopify.AccessToken == "" {
		missing = append(missing, EnvShopifyToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

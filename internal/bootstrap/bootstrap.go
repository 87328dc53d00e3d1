// Package bootstrap builds the collaborators every function binary shares
// from one cold-start configuration load.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/catalog"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/config"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/handlers"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/klaviyo"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/notify"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/shopify"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/webhookstore"
)

const ServiceName = "bridal-showroom"

type App struct {
	Config *config.Config
	Log    *logger.Logger

	Shopify    *shopify.Client
	Reconciler *showroom.Reconciler
	Inviter    *showroom.Inviter
	Query      *showroom.Query
	Lifecycle  *showroom.LifecycleProcessor
	Webhooks   *webhookstore.Store

	SyncPolicy showroom.CustomerPolicy
}

// NewLogger builds the service logger from the App section of cfg.
func NewLogger(cfg *config.Config, service string) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
}

// LoadConfig reads and resolves the configuration. AWS is only contacted
// when a secret lives in SSM.
func LoadConfig(ctx context.Context, loader *AWS) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	var params config.ParameterStore
	if cfg.NeedsParameterStore() {
		awsCfg, err := loader.Config(ctx)
		if err != nil {
			return nil, err
		}
		params = ssm.NewFromConfig(awsCfg)
	}
	if err := cfg.Resolve(ctx, params); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New wires every collaborator for service.
func New(ctx context.Context, service string) (*App, error) {
	awsLoader := &AWS{}
	cfg, err := LoadConfig(ctx, awsLoader)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireShopify(); err != nil {
		return nil, err
	}
	log := NewLogger(cfg, service)

	shop := shopify.New(cfg.Shopify.ShopDomain, cfg.Shopify.APIVersion, cfg.Shopify.AccessToken, shopify.WithLogger(log))

	invitePolicy, err := cfg.Showroom.InvitePolicy()
	if err != nil {
		return nil, err
	}
	syncPolicy, err := cfg.Showroom.SyncPolicy()
	if err != nil {
		return nil, err
	}

	var marketer showroom.Marketer
	if cfg.Klaviyo.Enabled() {
		marketer = klaviyo.New(cfg.Klaviyo.PrivateAPIKey, klaviyo.WithLogger(log))
	} else {
		log.Warn(ctx, "klaviyo not configured; invitations fall back to shopify account invites")
	}

	var products showroom.ProductSource = catalog.None{}
	var notifier showroom.Notifier
	var webhooks *webhookstore.Store
	if cfg.AWS.ProductsBucket != "" || cfg.AWS.AlertsTopicArn != "" || cfg.AWS.WebhookDedupeTable != "" || cfg.AWS.EventsTable != "" {
		awsCfg, err := awsLoader.Config(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.AWS.ProductsBucket != "" {
			products = catalog.NewS3Manifest(s3.NewFromConfig(awsCfg), cfg.AWS.ProductsBucket, cfg.AWS.ProductsPrefix)
		}
		if cfg.AWS.AlertsTopicArn != "" {
			notifier = notify.NewPublisher(sns.NewFromConfig(awsCfg), cfg.AWS.AlertsTopicArn)
		}
		if cfg.AWS.WebhookDedupeTable != "" || cfg.AWS.EventsTable != "" {
			webhooks = webhookstore.New(dynamodb.NewFromConfig(awsCfg), cfg.AWS.WebhookDedupeTable, cfg.AWS.EventsTable)
		}
	}

	rec := showroom.NewReconciler(shop, log, showroom.Options{
		BatchSize:  cfg.Showroom.WriteBatchSize,
		BatchDelay: cfg.Showroom.WriteBatchDelay,
	})
	return &App{
		Config:     cfg,
		Log:        log,
		Shopify:    shop,
		Reconciler: rec,
		Inviter: showroom.NewInviter(rec, shop, marketer, log, showroom.InviterOptions{
			Policy:  invitePolicy,
			Metric:  cfg.Klaviyo.InviteMetric,
			SiteURL: cfg.Site.URL,
		}),
		Query: showroom.NewQuery(shop, log, cfg.Showroom.StatusConcurrency),
		Lifecycle: showroom.NewLifecycleProcessor(shop, rec, products, notifier, log, showroom.LifecycleOptions{
			Secret: cfg.Shopify.WebhookSecret,
		}),
		Webhooks:   webhooks,
		SyncPolicy: syncPolicy,
	}, nil
}

func (a *App) Base(name string) handlers.Base {
	return handlers.Base{
		Name: name,
		Log:  a.Log,
		CORS: handlers.CORS{AllowOrigin: a.Config.Site.CORSAllowedOrigin},
	}
}

// Ledger is the webhook bookkeeping store, or nil when no table is set.
func (a *App) Ledger() handlers.WebhookLedger {
	if a.Webhooks == nil {
		return nil
	}
	return a.Webhooks
}

// Functions returns every HTTP function by its deployed name.
func (a *App) Functions() map[string]handlers.Func {
	return map[string]handlers.Func{
		"customer-activator": handlers.NewCustomerActivator(a.Base("customer-activator"), a.Inviter),
		"customer-lookup":    handlers.NewCustomerLookup(a.Base("customer-lookup"), a.Shopify),
		"showroom-deleter":   handlers.NewShowroomDeleter(a.Base("showroom-deleter"), a.Reconciler),
		"showroom-lister":    handlers.NewShowroomLister(a.Base("showroom-lister"), a.Query),
		"showroom-sync":      handlers.NewShowroomSync(a.Base("showroom-sync"), a.Reconciler, a.Query, a.SyncPolicy),
		"status-reader":      handlers.NewStatusReader(a.Base("status-reader"), a.Query),
		"status-updater":     handlers.NewStatusUpdater(a.Base("status-updater"), a.Lifecycle, a.Ledger()),
		"health":             handlers.NewHealth(a.Base("health"), ServiceName),
	}
}

// Function returns the named function or exits; used by the Lambda mains.
func Function(ctx context.Context, name string) handlers.Func {
	app, err := New(ctx, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: bootstrap failed: %v\n", name, err)
		os.Exit(1)
	}
	fn, ok := app.Functions()[name]
	if !ok {
		app.Log.Error(ctx, "unknown function "+name, nil)
		os.Exit(1)
	}
	return fn
}

// AWS loads the shared SDK config once, on first use.
type AWS struct {
	cfg *aws.Config
}

func (a *AWS) Config(ctx context.Context) (aws.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	// Uses the Lambda execution role credentials when deployed.
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.cfg = &cfg
	return cfg, nil
}

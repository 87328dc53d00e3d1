package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/bootstrap"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/shopify"
)

type result struct {
	Address string              `json:"address"`
	Created []string            `json:"created"`
	Failed  []map[string]string `json:"failed"`
}

// register-webhooks subscribes the shop to the lifecycle topics. The address
// is the status-updater URL or an EventBridge partner event source ARN.
func main() {
	logg := logger.New(logger.Options{ServiceName: "register-webhooks", Format: "console"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := bootstrap.LoadConfig(ctx, &bootstrap.AWS{})
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	if err := cfg.RequireShopify(); err != nil {
		logg.Error(ctx, "shopify is not configured", err)
		os.Exit(1)
	}

	address := flag.String("address", cfg.Site.StatusUpdaterURL, "webhook delivery URL or EventBridge ARN")
	topics := flag.String("topics", strings.Join(shopify.LifecycleTopics, ","), "comma separated webhook topics")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if strings.TrimSpace(*address) == "" {
		logg.Error(ctx, "an -address or STATUS_UPDATER_URL is required", nil)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := shopify.New(cfg.Shopify.ShopDomain, cfg.Shopify.APIVersion, cfg.Shopify.AccessToken, shopify.WithLogger(logg))
	var list []string
	for _, t := range strings.Split(*topics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, t)
		}
	}
	created, failed := client.SubscribeTopics(ctx, *address, list)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result{Address: *address, Created: created, Failed: failed})
	if len(failed) > 0 {
		os.Exit(1)
	}
}

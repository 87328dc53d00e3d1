package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/bootstrap"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/config"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/handlers"
)

// health needs no Shopify credentials, so it skips the full bootstrap.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	base := handlers.Base{
		Name: "health",
		Log:  bootstrap.NewLogger(cfg, "health"),
		CORS: handlers.CORS{AllowOrigin: cfg.Site.CORSAllowedOrigin},
	}
	lambda.Start(handlers.NewHealth(base, bootstrap.ServiceName))
}

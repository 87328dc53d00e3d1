package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/bootstrap"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/handlers"
)

func main() {
	app, err := bootstrap.New(context.Background(), "lifecycle-worker")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	lambda.Start(handlers.NewLifecycleWorker(app.Log, app.Lifecycle, app.Ledger()))
}

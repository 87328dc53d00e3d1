package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/bootstrap"
)

func main() {
	lambda.Start(bootstrap.Function(context.Background(), "showroom-lister"))
}

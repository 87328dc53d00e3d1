package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/bootstrap"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/handlers"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

// devserver runs every function behind one local HTTP server.
func main() {
	logg := logger.New(logger.Options{ServiceName: "devserver", Format: "console"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	app, err := bootstrap.New(context.Background(), "devserver")
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8888"
	}
	addr := ":" + port
	ctx := app.Log.WithFields(context.Background(), map[string]any{"addr": addr, "prefix": handlers.FunctionsPrefix})
	app.Log.Info(ctx, "starting dev server")

	server := &http.Server{
		Addr:    addr,
		Handler: handlers.NewRouter(app.Functions()),
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.Log.Error(ctx, "dev server stopped unexpectedly", err)
		os.Exit(1)
	}
}

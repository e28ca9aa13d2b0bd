package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gin-gonic/gin"

	"podsearch/internal/config"
	"podsearch/internal/search"
	"podsearch/internal/sites"
	"podsearch/internal/storage"
)

func main() {
	// Initialize structured logging
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})
	slog.SetDefault(slog.New(jsonHandler))

	if config.SiteID == "" {
		slog.Error("SITE_ID is required")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.ForSite(ctx, config.SiteID)
	if err != nil {
		slog.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}

	engine := search.NewEngine(store, config.SiteID, os.TempDir())

	// Inside Lambda the runtime drives us; otherwise run the HTTP server.
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		slog.Info("Starting in Lambda mode", "site", config.SiteID)
		lambda.Start(func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return search.InvokeHandler(engine)(ctx, payload)
		})
		return
	}

	runServer(engine)
}

// siteOrigin resolves the CORS allow-origin from the site's configured
// public domain. Sites without a domain (or an unreadable sites config)
// fall back to allowing any origin.
func siteOrigin() string {
	registry, err := sites.Load(config.SitesConfigPath)
	if err != nil {
		slog.Warn("Sites config unavailable, allowing any origin", "error", err)
		return ""
	}
	site, ok := registry.Get(config.SiteID)
	if !ok || site.Domain == "" {
		return ""
	}
	return "https://" + site.Domain
}

func runServer(engine *search.Engine) {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(search.CORSMiddleware(siteOrigin()))
	search.SetupRoutes(router, engine)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed to start", "error", err)
			cancel()
		}
	}()

	slog.Info("Search server started", "site", config.SiteID, "port", config.Port)

	// Warm the index in the background so the first query does not pay the
	// restore cost. Failure is tolerated; queries will surface a 503.
	go func() {
		if err := engine.Warmup(ctx); err != nil {
			slog.Warn("Index warmup failed", "error", err)
		}
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	} else {
		slog.Info("Server exited gracefully")
	}
}

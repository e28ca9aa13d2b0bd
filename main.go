package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"podsearch/internal/config"
	"podsearch/internal/pipeline"
	"podsearch/internal/sites"
)

func main() {
	sitesFlag := flag.String("sites", "", "comma-separated site ids to run (default: all)")
	dryRun := flag.Bool("dry-run", false, "resolve sites and stores but perform no writes")
	flag.Parse()

	// Initialize structured logging
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})
	slog.SetDefault(slog.New(jsonHandler))

	registry, err := sites.Load(config.SitesConfigPath)
	if err != nil {
		slog.Error("Failed to load site registry", "error", err)
		os.Exit(1)
	}

	// Cancel the run on SIGINT/SIGTERM; in-flight phases observe the context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var siteIDs []string
	if *sitesFlag != "" {
		for _, id := range strings.Split(*sitesFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				siteIDs = append(siteIDs, id)
			}
		}
	}

	p := pipeline.New(registry)
	p.DryRun = *dryRun

	if _, err := p.Run(ctx, siteIDs); err != nil {
		slog.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}
}

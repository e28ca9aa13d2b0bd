package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"podsearch/internal/config"
	"podsearch/internal/corrections"
	"podsearch/internal/queue"
	"podsearch/internal/searchindex"
	"podsearch/internal/storage"
	"podsearch/internal/transcribe"
)

func main() {
	// Initialize structured logging with JSON handler
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})
	slog.SetDefault(slog.New(jsonHandler))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	jobQueue, err := queue.NewQueue(ctx)
	if err != nil {
		slog.Error("Failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer jobQueue.Close()

	slog.Info("Worker started, waiting for jobs...")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down")
			return
		case sig := <-sigChan:
			slog.Info("Received signal, shutting down gracefully", "signal", sig)
			cancel()
			return
		default:
			// Dequeue job (blocks until job available or timeout)
			job, err := jobQueue.Dequeue(ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				slog.Error("Failed to dequeue job", "error", err)
				continue
			}

			if job == nil {
				// Timeout, no job available - loop continues
				continue
			}

			// Only one job per site at a time; the index upload is a
			// whole-artifact replace and concurrent builds would race.
			started, err := jobQueue.StartJob(ctx, job.SiteID)
			if err != nil {
				slog.Error("Failed to mark job as started", "error", err, "job_id", job.ID)
				jobQueue.FailJob(ctx, job, "Failed to acquire site lock")
				continue
			}
			if !started {
				slog.Warn("Site already has a running job, failing new job",
					"site_id", job.SiteID, "job_id", job.ID)
				jobQueue.FailJob(ctx, job, "Site already has a job being processed")
				continue
			}

			// Process the job - use a function to ensure defer runs
			func() {
				defer func() {
					if err := jobQueue.CompleteJob(ctx, job.SiteID); err != nil {
						slog.Error("Failed to release site lock", "error", err, "site_id", job.SiteID)
					}
				}()

				slog.Info("Processing job", "job_id", job.ID, "site_id", job.SiteID, "kind", job.Kind)

				if err := runJob(ctx, job); err != nil {
					slog.Error("Job processing failed", "error", err, "job_id", job.ID)
					jobQueue.FailJob(ctx, job, err.Error())
				} else {
					slog.Info("Job completed successfully", "job_id", job.ID)
				}
			}()
		}
	}
}

func runJob(ctx context.Context, job *queue.Job) error {
	store, err := storage.ForSite(ctx, job.SiteID)
	if err != nil {
		return err
	}

	switch job.Kind {
	case queue.KindReapplyCorrections:
		table, err := corrections.Load(ctx, store, config.CustomCorrectionsPath)
		if err != nil {
			return err
		}
		proc := transcribe.NewProcessor(store, nil, table)
		report, err := proc.ReapplyCorrections(ctx)
		if err != nil {
			return err
		}
		slog.Info("Corrections reapplied across site", "site_id", job.SiteID, "substitutions", report.Total())
		// Transcripts changed; the index must follow.
		if report.Total() == 0 {
			return nil
		}
		fallthrough
	case queue.KindIndex:
		_, err := searchindex.Build(ctx, store)
		return err
	default:
		slog.Warn("Unknown job kind ignored", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
}

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ytnotes/backend/internal/auth"
	"github.com/ytnotes/backend/internal/config"
	"github.com/ytnotes/backend/internal/db"
	"github.com/ytnotes/backend/internal/handlers"
	"github.com/ytnotes/backend/internal/middleware"
	"github.com/ytnotes/backend/internal/pipeline"
	"github.com/ytnotes/backend/internal/repositories"
	"github.com/ytnotes/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers and starts the background note generation workers. The returned
// cleanup drains the workers and must be invoked during shutdown.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	assets, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	resolver := pipeline.NewCachingResolver(
		pipeline.NewYTDLPResolver(cfg.YTDLPPath, cfg.CookieFile, cfg.YTDLPTimeout),
		cfg.MetadataTTL,
	)

	acquirer := pipeline.NewYTDLPAcquirer(cfg.YTDLPPath, cfg.CookieFile, assets, cfg.ObjectStore.Folder, cfg.MaxDuration, cfg.DownloadTimeout)

	transcriber := pipeline.NewSpeechClient(cfg.Transcriber.BaseURL, cfg.Transcriber.APIKey, cfg.Transcriber.PollInterval, cfg.Transcriber.PollTimeout)

	synthesizer := pipeline.NewGenAIClient(cfg.Synthesizer.BaseURL, cfg.Synthesizer.APIKey, cfg.Synthesizer.Models, slog.Default())

	runner := &pipeline.Runner{
		Resolver:    resolver,
		Acquirer:    acquirer,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Logger:      slog.Default(),
	}

	notes := repositories.NewPostgresNoteRepository(pool)

	worker := pipeline.NewWorker(runner, notes, pipeline.WorkerConfig{
		QueueSize: cfg.Pipeline.QueueSize,
		Workers:   cfg.Pipeline.Workers,
	}, slog.Default())

	sessionStore := repositories.NewPostgresSessionStore(pool)

	deps := handlers.Dependencies{
		Users:           repositories.NewPostgresUserRepository(pool),
		Sessions:        auth.NewManager(15*time.Minute, 24*time.Hour, sessionStore),
		Notes:           notes,
		Pipeline:        worker,
		GenerateLimiter: middleware.NewIPRateLimiter(10, time.Minute, 3, 10*time.Minute),
	}

	cleanup := func(shutdownCtx context.Context) error {
		return worker.Shutdown(shutdownCtx)
	}

	return deps, cleanup, nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ytnotes/backend/internal/logging"
)

// Result is the complete success payload of a pipeline run. Degraded marks
// that NotesContent holds the placeholder instead of generated notes.
type Result struct {
	Title      string
	AudioURL   string
	Transcript string
	Notes      string
	Degraded   bool
}

// Runner sequences validate, resolve, acquire, transcribe, and synthesize for
// a single link. It performs no internal retries; each external call is
// attempted exactly once per run. A run yields either a complete Result or a
// *StageError, never a partially-filled Result.
type Runner struct {
	Resolver    SourceResolver
	Acquirer    AudioAcquirer
	Transcriber Transcriber
	Synthesizer NotesSynthesizer
	Logger      *slog.Logger
}

// Run executes the pipeline for a raw link string.
func (r *Runner) Run(ctx context.Context, rawLink string) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	link, err := NormalizeLink(rawLink)
	if err != nil {
		return Result{}, &StageError{Stage: StageValidate, Err: err}
	}

	if r.Resolver == nil || r.Acquirer == nil || r.Transcriber == nil || r.Synthesizer == nil {
		return Result{}, &StageError{Stage: StageResolve, Err: fmt.Errorf("pipeline dependencies missing")}
	}

	resolveCtx, span := logging.StartSpan(ctx, "pipeline.resolve")
	info, err := r.Resolver.Resolve(resolveCtx, link)
	span.End()
	if err != nil {
		return Result{}, &StageError{Stage: StageResolve, Err: err}
	}
	logger.Info("source resolved", "title", info.Title, "duration", info.Duration)

	acquireCtx, span := logging.StartSpan(ctx, "pipeline.acquire")
	asset, err := r.Acquirer.Acquire(acquireCtx, link, info)
	span.End()
	if err != nil {
		return Result{}, &StageError{Stage: StageAcquire, Err: err}
	}
	logger.Info("audio acquired", "audioUrl", asset.URL)

	transcribeCtx, span := logging.StartSpan(ctx, "pipeline.transcribe")
	transcript, err := r.Transcriber.Transcribe(transcribeCtx, asset)
	span.End()
	if err != nil {
		return Result{}, &StageError{Stage: StageTranscribe, Err: err}
	}

	synthCtx, span := logging.StartSpan(ctx, "pipeline.synthesize")
	notes, degraded := r.Synthesizer.Synthesize(synthCtx, transcript, info.Title)
	span.End()
	if degraded {
		logger.Warn("notes generation degraded to placeholder", "link", link)
	}

	return Result{
		Title:      info.Title,
		AudioURL:   asset.URL,
		Transcript: transcript,
		Notes:      notes,
		Degraded:   degraded,
	}, nil
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ReadyNote carries the success payload handed to the store when a run completes.
type ReadyNote struct {
	Title        string
	AudioURL     string
	Transcript   string
	NotesContent string
	Degraded     bool
}

// NoteUpdater persists pipeline outcomes for pending note records.
type NoteUpdater interface {
	MarkReady(ctx context.Context, noteID string, ready ReadyNote) error
	MarkFailed(ctx context.Context, noteID, stage, reason string) error
}

// NoteRunner executes one pipeline run for a link.
type NoteRunner interface {
	Run(ctx context.Context, rawLink string) (Result, error)
}

// WorkerConfig controls the concurrency characteristics of the worker pool.
type WorkerConfig struct {
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
}

// Worker executes note generation runs in the background so request handlers
// can return a pending record immediately instead of blocking for the full
// duration of every external call.
type Worker struct {
	runner  NoteRunner
	updater NoteUpdater
	logger  *slog.Logger
	timeout time.Duration

	jobs   chan noteJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type noteJob struct {
	noteID string
	link   string
}

var errWorkerClosed = errors.New("pipeline worker closed")

// NewWorker constructs a background worker pool executing pipeline runs.
func NewWorker(runner NoteRunner, updater NoteUpdater, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 45 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		runner:  runner,
		updater: updater,
		logger:  logger,
		timeout: cfg.JobTimeout,
		jobs:    make(chan noteJob, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.worker()
	}

	return w
}

// Enqueue schedules a pipeline run for the pending note record.
func (w *Worker) Enqueue(ctx context.Context, noteID, link string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return errWorkerClosed
	default:
	}

	job := noteJob{noteID: noteID, link: link}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return errWorkerClosed
	case w.jobs <- job:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.once.Do(func() {
		w.cancel()
		close(w.jobs)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Worker) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.handleJob(job)
		}
	}
}

func (w *Worker) handleJob(job noteJob) {
	if w.runner == nil || w.updater == nil {
		w.logger.Error("pipeline worker missing dependencies", "hasRunner", w.runner != nil, "hasUpdater", w.updater != nil)
		return
	}

	runCtx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	result, err := w.runner.Run(runCtx, job.link)
	if err != nil {
		stage := FailureStage(err)
		if stage == "" {
			stage = StageResolve
		}
		w.logger.Error("note generation failed", "noteId", job.noteID, "stage", stage, "error", err)
		w.recordFailure(job.noteID, stage, err.Error())
		return
	}

	ready := ReadyNote{
		Title:        result.Title,
		AudioURL:     result.AudioURL,
		Transcript:   result.Transcript,
		NotesContent: result.Notes,
		Degraded:     result.Degraded,
	}

	if err := w.recordSuccess(job.noteID, ready); err != nil {
		w.logger.Error("persist generated note", "noteId", job.noteID, "error", err)
		w.recordFailure(job.noteID, StagePersist, err.Error())
	}
}

func (w *Worker) recordFailure(noteID, stage, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.updater.MarkFailed(ctx, noteID, stage, reason); err != nil {
		w.logger.Error("record note failure", "noteId", noteID, "error", err)
	}
}

func (w *Worker) recordSuccess(noteID string, ready ReadyNote) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return w.updater.MarkReady(ctx, noteID, ready)
}

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubResolver struct {
	info  SourceInfo
	err   error
	calls int
}

func (r *stubResolver) Resolve(context.Context, string) (SourceInfo, error) {
	r.calls++
	return r.info, r.err
}

type stubAcquirer struct {
	asset AudioAsset
	err   error
	calls int
}

func (a *stubAcquirer) Acquire(context.Context, string, SourceInfo) (AudioAsset, error) {
	a.calls++
	return a.asset, a.err
}

type stubTranscriber struct {
	text  string
	err   error
	calls int
}

func (t *stubTranscriber) Transcribe(context.Context, AudioAsset) (string, error) {
	t.calls++
	return t.text, t.err
}

type stubSynthesizer struct {
	notes    string
	degraded bool
	calls    int
}

func (s *stubSynthesizer) Synthesize(context.Context, string, string) (string, bool) {
	s.calls++
	return s.notes, s.degraded
}

func newTestRunner() (*Runner, *stubResolver, *stubAcquirer, *stubTranscriber, *stubSynthesizer) {
	resolver := &stubResolver{info: SourceInfo{Title: "Test Video", Duration: 10 * time.Minute}}
	acquirer := &stubAcquirer{asset: AudioAsset{URL: "https://cdn.example.com/audio.m4a"}}
	transcriber := &stubTranscriber{text: "hello world"}
	synthesizer := &stubSynthesizer{notes: "# Notes\n- hello"}

	runner := &Runner{
		Resolver:    resolver,
		Acquirer:    acquirer,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
	}
	return runner, resolver, acquirer, transcriber, synthesizer
}

func TestRunnerRunSuccess(t *testing.T) {
	runner, _, _, _, _ := newTestRunner()

	result, err := runner.Run(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Result{
		Title:      "Test Video",
		AudioURL:   "https://cdn.example.com/audio.m4a",
		Transcript: "hello world",
		Notes:      "# Notes\n- hello",
		Degraded:   false,
	}
	if result != want {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunnerRejectsInvalidLinkBeforeAnyStage(t *testing.T) {
	runner, resolver, acquirer, transcriber, synthesizer := newTestRunner()

	_, err := runner.Run(context.Background(), "https://vimeo.com/12345")

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageValidate {
		t.Fatalf("expected validate stage error, got %v", err)
	}
	if !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}

	if resolver.calls+acquirer.calls+transcriber.calls+synthesizer.calls != 0 {
		t.Fatal("expected no stage to run for an invalid link")
	}
}

func TestRunnerStageFailures(t *testing.T) {
	cases := []struct {
		name      string
		configure func(*stubResolver, *stubAcquirer, *stubTranscriber)
		wantStage string
		wantErr   error
	}{
		{
			name: "resolve failure",
			configure: func(r *stubResolver, _ *stubAcquirer, _ *stubTranscriber) {
				r.err = ErrSourceUnavailable
			},
			wantStage: StageResolve,
			wantErr:   ErrSourceUnavailable,
		},
		{
			name: "duration ceiling",
			configure: func(_ *stubResolver, a *stubAcquirer, _ *stubTranscriber) {
				a.err = ErrDurationExceeded
			},
			wantStage: StageAcquire,
			wantErr:   ErrDurationExceeded,
		},
		{
			name: "upload failure",
			configure: func(_ *stubResolver, a *stubAcquirer, _ *stubTranscriber) {
				a.err = ErrUploadFailed
			},
			wantStage: StageAcquire,
			wantErr:   ErrUploadFailed,
		},
		{
			name: "transcription failure",
			configure: func(_ *stubResolver, _ *stubAcquirer, tr *stubTranscriber) {
				tr.err = ErrTranscriptionFailed
			},
			wantStage: StageTranscribe,
			wantErr:   ErrTranscriptionFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner, resolver, acquirer, transcriber, synthesizer := newTestRunner()
			tc.configure(resolver, acquirer, transcriber)

			_, err := runner.Run(context.Background(), "https://youtu.be/abc123")

			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("expected StageError, got %v", err)
			}
			if stageErr.Stage != tc.wantStage {
				t.Fatalf("expected stage %q, got %q", tc.wantStage, stageErr.Stage)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}

			if synthesizer.calls != 0 {
				t.Fatal("expected no synthesis after a failed stage")
			}
		})
	}
}

func TestRunnerDegradedSynthesisStillSucceeds(t *testing.T) {
	runner, _, _, _, synthesizer := newTestRunner()
	synthesizer.notes = NotesPlaceholder
	synthesizer.degraded = true

	result, err := runner.Run(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("expected degraded run to succeed, got %v", err)
	}

	if !result.Degraded {
		t.Fatal("expected degraded flag")
	}
	if result.Notes != NotesPlaceholder {
		t.Fatalf("expected placeholder notes, got %q", result.Notes)
	}
	if result.Transcript != "hello world" || result.AudioURL == "" || result.Title == "" {
		t.Fatalf("expected full payload despite degradation: %+v", result)
	}
}

func TestRunnerRequiresDependencies(t *testing.T) {
	runner := &Runner{}

	_, err := runner.Run(context.Background(), "https://youtu.be/abc123")

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageResolve {
		t.Fatalf("expected resolve stage error for missing dependencies, got %v", err)
	}
}

func TestFailureStage(t *testing.T) {
	if got := FailureStage(&StageError{Stage: StageTranscribe, Err: ErrTranscriptionFailed}); got != StageTranscribe {
		t.Fatalf("expected transcribe stage, got %q", got)
	}
	if got := FailureStage(errors.New("plain")); got != "" {
		t.Fatalf("expected empty stage for plain error, got %q", got)
	}
	if got := FailureStage(nil); got != "" {
		t.Fatalf("expected empty stage for nil error, got %q", got)
	}
}

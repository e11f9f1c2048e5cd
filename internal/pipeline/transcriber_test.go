package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTranscriptServer(t *testing.T, pollResponses []transcriptJob) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["audio_url"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(transcriptJob{ID: "job-1", Status: "queued"})
	})
	mux.HandleFunc("/v2/transcript/", func(w http.ResponseWriter, r *http.Request) {
		idx := int(polls.Add(1)) - 1
		if idx >= len(pollResponses) {
			idx = len(pollResponses) - 1
		}
		_ = json.NewEncoder(w).Encode(pollResponses[idx])
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &polls
}

func TestSpeechClientTranscribe(t *testing.T) {
	server, polls := newTranscriptServer(t, []transcriptJob{
		{ID: "job-1", Status: "processing"},
		{ID: "job-1", Status: "completed", Text: "hello world"},
	})

	client := NewSpeechClient(server.URL, "test-key", 5*time.Millisecond, time.Second)

	text, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if text != "hello world" {
		t.Fatalf("expected transcript text, got %q", text)
	}

	if polls.Load() < 2 {
		t.Fatalf("expected polling until completion, got %d polls", polls.Load())
	}
}

func TestSpeechClientJobError(t *testing.T) {
	server, _ := newTranscriptServer(t, []transcriptJob{
		{ID: "job-1", Status: "error", Error: "audio could not be decoded"},
	})

	client := NewSpeechClient(server.URL, "test-key", 5*time.Millisecond, time.Second)

	_, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "audio could not be decoded") {
		t.Fatalf("expected upstream reason in error, got %v", err)
	}
}

func TestSpeechClientPollTimeout(t *testing.T) {
	server, _ := newTranscriptServer(t, []transcriptJob{
		{ID: "job-1", Status: "processing"},
	})

	client := NewSpeechClient(server.URL, "test-key", 5*time.Millisecond, 30*time.Millisecond)

	_, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed on timeout, got %v", err)
	}
}

func TestSpeechClientRequiresAPIKey(t *testing.T) {
	client := NewSpeechClient("http://localhost:0", "", time.Millisecond, time.Second)

	_, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed without API key, got %v", err)
	}
}

func TestSpeechClientRetriesTransientSubmitFailures(t *testing.T) {
	var submits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		if submits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(transcriptJob{ID: "job-1", Status: "queued"})
	})
	mux.HandleFunc("/v2/transcript/", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(transcriptJob{ID: "job-1", Status: "completed", Text: "recovered"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewSpeechClient(server.URL, "test-key", 5*time.Millisecond, time.Second)

	text, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("expected transcript after retry, got %q", text)
	}
	if submits.Load() < 2 {
		t.Fatalf("expected submit to be retried, got %d attempts", submits.Load())
	}
}

func TestSpeechClientDoesNotRetryClientErrors(t *testing.T) {
	var submits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, _ *http.Request) {
		submits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewSpeechClient(server.URL, "test-key", 5*time.Millisecond, time.Second)

	_, err := client.Transcribe(context.Background(), AudioAsset{URL: "https://cdn.example.com/audio.m4a"})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if submits.Load() != 1 {
		t.Fatalf("expected a single attempt for a 4xx answer, got %d", submits.Load())
	}
}

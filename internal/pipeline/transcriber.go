package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Transcriber produces a full text transcript for an uploaded audio asset.
// The call blocks until the external job reaches a terminal state; it is the
// dominant-latency stage of a pipeline run.
type Transcriber interface {
	Transcribe(ctx context.Context, asset AudioAsset) (string, error)
}

// SpeechClient submits audio URLs to an AssemblyAI-style speech-to-text API
// and polls the job until it completes. No raw audio bytes are ever held in
// process memory.
type SpeechClient struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewSpeechClient constructs a Transcriber targeting the provided service.
func NewSpeechClient(baseURL, apiKey string, pollInterval, pollTimeout time.Duration) *SpeechClient {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Minute
	}
	return &SpeechClient{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: pollInterval,
		PollTimeout:  pollTimeout,
	}
}

type transcriptJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe submits the asset URL and waits for a terminal job status.
func (c *SpeechClient) Transcribe(ctx context.Context, asset AudioAsset) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrTranscriptionFailed)
	}

	body, err := json.Marshal(map[string]string{"audio_url": asset.URL})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrTranscriptionFailed, err)
	}

	var job transcriptJob
	if err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/v2/transcript", body, &job); err != nil {
		return "", fmt.Errorf("%w: submit: %v", ErrTranscriptionFailed, err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("%w: submit returned no job id", ErrTranscriptionFailed)
	}

	deadline := time.NewTimer(c.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("%w: job %s did not complete within %s", ErrTranscriptionFailed, job.ID, c.PollTimeout)
		case <-ticker.C:
		}

		var status transcriptJob
		if err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/v2/transcript/"+job.ID, nil, &status); err != nil {
			return "", fmt.Errorf("%w: poll: %v", ErrTranscriptionFailed, err)
		}

		switch status.Status {
		case "completed":
			return status.Text, nil
		case "error":
			return "", fmt.Errorf("%w: %s", ErrTranscriptionFailed, status.Error)
		default:
			// queued or processing, keep polling
		}
	}
}

// doJSON performs one logical request, retrying only transport-level failures
// and upstream 429/5xx responses with exponential backoff. Terminal API
// answers are never retried here; retry policy for whole runs belongs to the
// caller.
func (c *SpeechClient) doJSON(ctx context.Context, method, url string, body []byte, target any) error {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.APIKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
		}

		if err := json.Unmarshal(payload, target); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

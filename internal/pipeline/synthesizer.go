package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NotesSynthesizer derives structured notes from a transcript. Synthesis is
// best-effort: it reports degradation instead of failing, so a user still
// receives title, audio, and transcript when generation is unavailable.
type NotesSynthesizer interface {
	Synthesize(ctx context.Context, transcript, title string) (notes string, degraded bool)
}

// NotesPlaceholder is returned in place of generated notes when every
// candidate model fails or no generation backend is configured.
const NotesPlaceholder = "Note generation is currently unavailable. Please try again later."

const notesPromptTemplate = `You are an expert note-taker. Create comprehensive, organized notes from the following transcript of a video titled: %q.

The notes should:
1. Have a clear, hierarchical structure with headings and subheadings
2. Include key concepts, ideas, and important information
3. Be organized in a logical manner that makes the content easy to understand and review
4. Use bullet points for detailed information under each section
5. Be written in a clear, concise academic style

Transcript:
%s
`

// errModelUnsupported marks a capability error: the model id is unknown to the
// backend or rejects the request shape. The next candidate model is tried.
var errModelUnsupported = errors.New("model unsupported")

// GenAIClient generates notes through a Gemini-style REST API, trying an
// ordered list of candidate models.
type GenAIClient struct {
	BaseURL    string
	APIKey     string
	Models     []string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewGenAIClient constructs a NotesSynthesizer targeting the provided service.
func NewGenAIClient(baseURL, apiKey string, models []string, logger *slog.Logger) *GenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenAIClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		Models:     models,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Logger:     logger,
	}
}

// Synthesize builds one fixed prompt embedding title and transcript verbatim
// and walks the candidate models. Capability errors fall through to the next
// model; auth and quota errors stop the chain. All exhausted paths return the
// placeholder with degraded set.
func (c *GenAIClient) Synthesize(ctx context.Context, transcript, title string) (string, bool) {
	if strings.TrimSpace(c.APIKey) == "" || len(c.Models) == 0 {
		return NotesPlaceholder, true
	}

	prompt := fmt.Sprintf(notesPromptTemplate, title, transcript)

	for _, model := range c.Models {
		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			return text, false
		}
		if errors.Is(err, errModelUnsupported) {
			c.Logger.Warn("model unavailable, trying next candidate", "model", model, "error", err)
			continue
		}
		c.Logger.Error("notes generation failed", "model", model, "error", err)
		break
	}

	return NotesPlaceholder, true
}

func (c *GenAIClient) generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.BaseURL, model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s status %d", errModelUnsupported, model, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%s status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty generation from %s", model)
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

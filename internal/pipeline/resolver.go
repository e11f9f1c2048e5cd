package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// SourceInfo captures the metadata needed before any media transfer happens.
type SourceInfo struct {
	Title    string
	Duration time.Duration
}

// SourceResolver returns metadata for a validated video link.
type SourceResolver interface {
	Resolve(ctx context.Context, link string) (SourceInfo, error)
}

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// browserHeaderArgs makes yt-dlp requests look like a regular browser session.
// Upstream hosts throttle unadorned clients aggressively; this is a resilience
// measure, not a security boundary.
func browserHeaderArgs() []string {
	return []string{
		"--user-agent", browserUserAgent,
		"--add-header", "Accept-Language:en-us,en;q=0.5",
		"--add-header", "Sec-Fetch-Mode:navigate",
	}
}

// YTDLPResolver fetches title and duration using the yt-dlp CLI tool without
// transferring any media.
type YTDLPResolver struct {
	Binary     string
	CookieFile string
	Run        CommandRunner
	Timeout    time.Duration
}

// NewYTDLPResolver constructs a SourceResolver that shells out to yt-dlp.
func NewYTDLPResolver(binary, cookieFile string, timeout time.Duration) *YTDLPResolver {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YTDLPResolver{
		Binary:     binary,
		CookieFile: cookieFile,
		Run:        defaultCommandRunner,
		Timeout:    timeout,
	}
}

// Resolve executes yt-dlp for the provided link and parses the JSON response.
func (r *YTDLPResolver) Resolve(ctx context.Context, link string) (SourceInfo, error) {
	if r == nil {
		return SourceInfo{}, fmt.Errorf("%w: resolver not configured", ErrSourceUnavailable)
	}
	if r.Run == nil {
		r.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	args := []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"}
	args = append(args, browserHeaderArgs()...)
	if strings.TrimSpace(r.CookieFile) != "" {
		args = append(args, "--cookies", r.CookieFile)
	}
	args = append(args, link)

	out, err := r.Run(execCtx, r.Binary, args...)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%w: yt-dlp: %v", ErrSourceUnavailable, err)
	}

	var payload struct {
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return SourceInfo{}, fmt.Errorf("%w: parse yt-dlp response: %v", ErrSourceMalformed, err)
	}

	if payload.Title == "" {
		return SourceInfo{}, fmt.Errorf("%w: empty title", ErrSourceMalformed)
	}

	return SourceInfo{
		Title:    payload.Title,
		Duration: time.Duration(payload.Duration * float64(time.Second)),
	}, nil
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}

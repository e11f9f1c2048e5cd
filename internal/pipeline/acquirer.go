package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetStorage persists binary content and returns a durable public location.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// AudioAsset is the durable result of acquisition: a remote URL pointing at an
// uploaded audio object.
type AudioAsset struct {
	URL string
}

// AudioAcquirer resolves the audio stream for a link into an uploaded asset.
// Acquiring the same link twice produces a new asset each time; callers must
// not assume de-duplication.
type AudioAcquirer interface {
	Acquire(ctx context.Context, link string, info SourceInfo) (AudioAsset, error)
}

// YTDLPAcquirer extracts audio with yt-dlp and uploads it to AssetStorage.
type YTDLPAcquirer struct {
	Binary      string
	CookieFile  string
	Run         CommandRunner
	Storage     AssetStorage
	Folder      string
	MaxDuration time.Duration
	Timeout     time.Duration

	// TempDir overrides the base directory for transient downloads. Empty
	// means the operating system default.
	TempDir string
}

// NewYTDLPAcquirer constructs an acquirer that shells out to yt-dlp.
func NewYTDLPAcquirer(binary, cookieFile string, storage AssetStorage, folder string, maxDuration, timeout time.Duration) *YTDLPAcquirer {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if strings.TrimSpace(folder) == "" {
		folder = "youtube_audio"
	}
	if maxDuration <= 0 {
		maxDuration = time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &YTDLPAcquirer{
		Binary:      binary,
		CookieFile:  cookieFile,
		Run:         defaultCommandRunner,
		Storage:     storage,
		Folder:      folder,
		MaxDuration: maxDuration,
		Timeout:     timeout,
	}
}

// Acquire enforces the duration ceiling, downloads the best audio-only stream
// to a transient location, uploads it to the content store, and removes the
// local file on every exit path.
func (a *YTDLPAcquirer) Acquire(ctx context.Context, link string, info SourceInfo) (AudioAsset, error) {
	if a.MaxDuration > 0 && info.Duration > a.MaxDuration {
		return AudioAsset{}, fmt.Errorf("%w: %s is longer than %s", ErrDurationExceeded, info.Duration, a.MaxDuration)
	}

	if a.Storage == nil {
		return AudioAsset{}, fmt.Errorf("acquire: %w", ErrStorageUnavailable)
	}
	if a.Run == nil {
		a.Run = defaultCommandRunner
	}

	dir, err := os.MkdirTemp(a.TempDir, "ytnotes-audio-")
	if err != nil {
		return AudioAsset{}, fmt.Errorf("%w: create temp dir: %v", ErrDownloadFailed, err)
	}
	defer os.RemoveAll(dir)

	name := uuid.NewString() + ".m4a"
	outPath := filepath.Join(dir, name)

	execCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	args := []string{
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "m4a",
		"--no-warnings", "--no-playlist", "--no-progress",
		"-o", outPath,
	}
	args = append(args, browserHeaderArgs()...)
	if strings.TrimSpace(a.CookieFile) != "" {
		args = append(args, "--cookies", a.CookieFile)
	}
	args = append(args, link)

	if _, err := a.Run(execCtx, a.Binary, args...); err != nil {
		return AudioAsset{}, fmt.Errorf("%w: yt-dlp: %v", ErrDownloadFailed, err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		return AudioAsset{}, fmt.Errorf("%w: audio file missing after download: %v", ErrDownloadFailed, err)
	}
	defer f.Close()

	key := path.Join(a.Folder, name)
	url, err := a.Storage.Save(ctx, key, f)
	if err != nil {
		return AudioAsset{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return AudioAsset{URL: url}, nil
}

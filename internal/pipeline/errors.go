package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLink indicates the submitted link does not belong to a recognized video host.
	ErrInvalidLink = errors.New("link is not a recognized video host")
	// ErrSourceUnavailable indicates the video is private, deleted, restricted, or the host refused the request.
	ErrSourceUnavailable = errors.New("video source unavailable")
	// ErrSourceMalformed indicates the host responded but its metadata could not be parsed.
	ErrSourceMalformed = errors.New("video metadata malformed")
	// ErrDurationExceeded indicates the video is longer than the configured ceiling.
	ErrDurationExceeded = errors.New("video duration exceeds the allowed limit")
	// ErrDownloadFailed indicates the audio stream could not be negotiated or transferred.
	ErrDownloadFailed = errors.New("audio download failed")
	// ErrUploadFailed indicates the durable content store rejected the audio upload.
	ErrUploadFailed = errors.New("audio upload failed")
	// ErrTranscriptionFailed wraps any non-completed terminal state of the transcription job.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrStorageUnavailable indicates no asset storage was configured for the acquirer.
	ErrStorageUnavailable = errors.New("asset storage unavailable")
)

// Stage names carried on failures so callers can map them to responses.
const (
	StageValidate   = "validate"
	StageResolve    = "resolve"
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
)

// StageError ties a pipeline failure to the stage that produced it. A run
// either yields a complete Result or a StageError, never both.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailureStage extracts the stage name from a pipeline error, or "" when the
// error did not originate from a pipeline stage.
func FailureStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

package models

import "time"

// User represents an account that owns generated notes.
type User struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note is a persisted note document generated from a submitted video link.
// Records start out pending while the pipeline runs in the background and are
// marked ready or failed when the run reaches a terminal state.
type Note struct {
	ID            string
	OwnerID       string
	Title         string
	Link          string
	NotesContent  string
	Transcript    string
	AudioURL      string
	Status        string
	Degraded      bool
	FailureStage  string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	NoteStatusPending = "pending"
	NoteStatusReady   = "ready"
	NoteStatusFailed  = "failed"
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

package handlers

import (
	"context"

	"github.com/ytnotes/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes, and validates authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// NoteStore captures owner-scoped persistence for note documents.
type NoteStore interface {
	Create(ctx context.Context, note models.Note) error
	ListForOwner(ctx context.Context, ownerID string) ([]models.Note, error)
	Get(ctx context.Context, ownerID, noteID string) (models.Note, error)
	UpdateContent(ctx context.Context, ownerID, noteID, notesContent string) (models.Note, error)
	Delete(ctx context.Context, ownerID, noteID string) error
}

// NotePipeline schedules background note generation for a pending record.
type NotePipeline interface {
	Enqueue(ctx context.Context, noteID, link string) error
}

package repositories

import (
	"context"

	"github.com/ytnotes/backend/internal/models"
	"github.com/ytnotes/backend/internal/pipeline"
)

// NoteRepository exposes owner-scoped data access for generated notes. Every
// read and mutation is keyed by owner; access to another user's record
// surfaces as ErrNotFound rather than a permission error.
type NoteRepository interface {
	Create(ctx context.Context, note models.Note) error
	ListForOwner(ctx context.Context, ownerID string) ([]models.Note, error)
	Get(ctx context.Context, ownerID, noteID string) (models.Note, error)
	UpdateContent(ctx context.Context, ownerID, noteID, notesContent string) (models.Note, error)
	Delete(ctx context.Context, ownerID, noteID string) error

	MarkReady(ctx context.Context, noteID string, ready pipeline.ReadyNote) error
	MarkFailed(ctx context.Context, noteID, stage, reason string) error
}

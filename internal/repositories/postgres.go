package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ytnotes/backend/internal/db"
	"github.com/ytnotes/backend/internal/models"
	"github.com/ytnotes/backend/internal/pipeline"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// Update modifies an existing user record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, updated_at = $4
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

const noteColumns = `id, owner_id, title, link, notes_content, transcript, audio_url,
        status, degraded, failure_stage, failure_reason, created_at, updated_at`

// PostgresNoteRepository provides PostgreSQL-backed persistence for generated notes.
type PostgresNoteRepository struct {
	pool db.Pool
}

// NewPostgresNoteRepository constructs a note repository backed by PostgreSQL.
func NewPostgresNoteRepository(pool db.Pool) *PostgresNoteRepository {
	return &PostgresNoteRepository{pool: pool}
}

// Create stores a new note record. created_at is written once here and never
// touched again by later mutations.
func (r *PostgresNoteRepository) Create(ctx context.Context, note models.Note) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := note.Status
	if strings.TrimSpace(status) == "" {
		status = models.NoteStatusPending
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO notes (id, owner_id, title, link, notes_content, transcript, audio_url,
                           status, degraded, failure_stage, failure_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, note.ID, note.OwnerID, note.Title, note.Link, note.NotesContent, note.Transcript, note.AudioURL,
		status, note.Degraded, note.FailureStage, note.FailureReason, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert note: %w", err)
	}

	return nil
}

// ListForOwner returns the owner's notes in reverse chronological order.
func (r *PostgresNoteRepository) ListForOwner(ctx context.Context, ownerID string) ([]models.Note, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+noteColumns+`
        FROM notes
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	return notes, nil
}

// Get fetches a single note scoped to its owner.
func (r *PostgresNoteRepository) Get(ctx context.Context, ownerID, noteID string) (models.Note, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Note{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+noteColumns+`
        FROM notes
        WHERE owner_id = $1 AND id = $2
    `, ownerID, noteID)

	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Note{}, ErrNotFound
		}
		return models.Note{}, fmt.Errorf("select note: %w", err)
	}

	return note, nil
}

// UpdateContent replaces the note text of an owner's record and refreshes
// updated_at, leaving created_at untouched.
func (r *PostgresNoteRepository) UpdateContent(ctx context.Context, ownerID, noteID, notesContent string) (models.Note, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Note{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE notes
        SET notes_content = $3, updated_at = $4
        WHERE owner_id = $1 AND id = $2
        RETURNING `+noteColumns+`
    `, ownerID, noteID, notesContent, time.Now().UTC())

	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Note{}, ErrNotFound
		}
		return models.Note{}, fmt.Errorf("update note content: %w", err)
	}

	return note, nil
}

// Delete removes an owner's note.
func (r *PostgresNoteRepository) Delete(ctx context.Context, ownerID, noteID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM notes
        WHERE owner_id = $1 AND id = $2
    `, ownerID, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkReady writes the pipeline success payload onto a pending record.
func (r *PostgresNoteRepository) MarkReady(ctx context.Context, noteID string, ready pipeline.ReadyNote) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE notes
        SET status = $2,
            title = $3,
            audio_url = $4,
            transcript = $5,
            notes_content = $6,
            degraded = $7,
            failure_stage = '',
            failure_reason = '',
            updated_at = $8
        WHERE id = $1
    `, noteID, models.NoteStatusReady, ready.Title, ready.AudioURL, ready.Transcript, ready.NotesContent, ready.Degraded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update note status ready: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkFailed records the failing stage and reason for a pending record.
func (r *PostgresNoteRepository) MarkFailed(ctx context.Context, noteID, stage, reason string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE notes
        SET status = $2,
            failure_stage = $3,
            failure_reason = $4,
            updated_at = $5
        WHERE id = $1
    `, noteID, models.NoteStatusFailed, stage, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update note status failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (models.Note, error) {
	var note models.Note
	err := row.Scan(
		&note.ID, &note.OwnerID, &note.Title, &note.Link, &note.NotesContent, &note.Transcript, &note.AudioURL,
		&note.Status, &note.Degraded, &note.FailureStage, &note.FailureReason, &note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		return models.Note{}, err
	}
	return note, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ NoteRepository = (*PostgresNoteRepository)(nil)
var _ pipeline.NoteUpdater = (*PostgresNoteRepository)(nil)

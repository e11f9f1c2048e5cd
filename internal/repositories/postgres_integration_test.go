package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ytnotes/backend/internal/auth"
	"github.com/ytnotes/backend/internal/models"
	"github.com/ytnotes/backend/internal/pipeline"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:        uuid.NewString(),
		Email:     "alice@example.com",
		Password:  "secret-hash",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := models.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}

	if fetched.ID != user.ID || fetched.Email != user.Email || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	updated := user
	updated.Email = "updated@example.com"
	updated.Password = "rotated-hash"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)

	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update user: %v", err)
	}

	fetched, err = repo.FindByEmail(ctx, updated.Email)
	if err != nil {
		t.Fatalf("find by updated email: %v", err)
	}

	if fetched.Email != updated.Email || fetched.Password != updated.Password {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	missing := models.User{
		ID:        uuid.NewString(),
		Email:     "missing@example.com",
		Password:  "hash",
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Kind:      auth.SessionKindRefresh,
		ExpiresAt: expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.Token)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if loaded.UserID != session.UserID || loaded.Kind != auth.SessionKindRefresh || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	updated := session
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.Token)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}

	if !timesClose(loaded.ExpiresAt, updated.ExpiresAt.UTC(), time.Millisecond) {
		t.Fatalf("expected updated expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.Find(ctx, session.Token); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, session.Token); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func TestPostgresNoteRepository_CreateListAndOwnerScoping(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, userRepo, "owner@example.com")
	other := createTestUser(t, userRepo, "other@example.com")

	repo := NewPostgresNoteRepository(testPool)

	base := time.Now().UTC().Add(-time.Hour)
	first := createTestNote(t, repo, owner.ID, "https://www.youtube.com/watch?v=first", base)
	second := createTestNote(t, repo, owner.ID, "https://www.youtube.com/watch?v=second", base.Add(10*time.Minute))
	foreign := createTestNote(t, repo, other.ID, "https://www.youtube.com/watch?v=foreign", base.Add(20*time.Minute))

	notes, err := repo.ListForOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}

	if len(notes) != 2 {
		t.Fatalf("expected 2 notes for owner, got %d", len(notes))
	}

	if notes[0].ID != second.ID || notes[1].ID != first.ID {
		t.Fatalf("expected newest-first ordering, got %+v", notes)
	}

	if _, err := repo.Get(ctx, owner.ID, foreign.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-owner get, got %v", err)
	}

	if _, err := repo.UpdateContent(ctx, owner.ID, foreign.ID, "hijack"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-owner update, got %v", err)
	}

	if err := repo.Delete(ctx, owner.ID, foreign.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-owner delete, got %v", err)
	}

	if _, err := repo.Get(ctx, other.ID, foreign.ID); err != nil {
		t.Fatalf("expected owner to still reach their note, got %v", err)
	}

	duplicate := models.Note{
		ID:        first.ID,
		OwnerID:   owner.ID,
		Link:      first.Link,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, duplicate); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict creating duplicate id, got %v", err)
	}

	orphan := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   uuid.NewString(),
		Link:      "https://www.youtube.com/watch?v=orphan",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound creating note for missing owner, got %v", err)
	}
}

func TestPostgresNoteRepository_UpdateContentKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, userRepo, "owner@example.com")

	repo := NewPostgresNoteRepository(testPool)
	created := time.Now().UTC().Add(-2 * time.Hour)
	note := createTestNote(t, repo, owner.ID, "https://www.youtube.com/watch?v=edited", created)

	updated, err := repo.UpdateContent(ctx, owner.ID, note.ID, "# Edited\n- revised")
	if err != nil {
		t.Fatalf("update content: %v", err)
	}

	if updated.NotesContent != "# Edited\n- revised" {
		t.Fatalf("expected edited content, got %q", updated.NotesContent)
	}

	if !timesClose(updated.CreatedAt, created, time.Millisecond) {
		t.Fatalf("expected created_at to survive edits, got %v", updated.CreatedAt)
	}

	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("expected updated_at to move forward, got %v", updated.UpdatedAt)
	}
}

func TestPostgresNoteRepository_MarkReadyAndMarkFailed(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, userRepo, "owner@example.com")

	repo := NewPostgresNoteRepository(testPool)
	note := createTestNote(t, repo, owner.ID, "https://www.youtube.com/watch?v=ready", time.Now().UTC())

	ready := pipeline.ReadyNote{
		Title:        "Resolved Title",
		AudioURL:     "https://cdn.example.com/youtube_audio/abc.m4a",
		Transcript:   "hello world",
		NotesContent: "# Notes\n- hello",
		Degraded:     false,
	}

	if err := repo.MarkReady(ctx, note.ID, ready); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	fetched, err := repo.Get(ctx, owner.ID, note.ID)
	if err != nil {
		t.Fatalf("get after mark ready: %v", err)
	}

	if fetched.Status != models.NoteStatusReady || fetched.Title != ready.Title || fetched.Transcript != ready.Transcript || fetched.NotesContent != ready.NotesContent {
		t.Fatalf("unexpected ready note: %+v", fetched)
	}

	failing := createTestNote(t, repo, owner.ID, "https://www.youtube.com/watch?v=failing", time.Now().UTC())

	if err := repo.MarkFailed(ctx, failing.ID, "transcribe", "speech service unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	fetched, err = repo.Get(ctx, owner.ID, failing.ID)
	if err != nil {
		t.Fatalf("get after mark failed: %v", err)
	}

	if fetched.Status != models.NoteStatusFailed || fetched.FailureStage != "transcribe" || fetched.FailureReason != "speech service unavailable" {
		t.Fatalf("unexpected failed note: %+v", fetched)
	}

	if err := repo.MarkReady(ctx, uuid.NewString(), ready); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking unknown note ready, got %v", err)
	}

	if err := repo.MarkFailed(ctx, uuid.NewString(), "resolve", "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking unknown note failed, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE notes, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestNote(t *testing.T, repo *PostgresNoteRepository, ownerID, link string, createdAt time.Time) models.Note {
	t.Helper()
	note := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Link:      link,
		Status:    models.NoteStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := repo.Create(context.Background(), note); err != nil {
		t.Fatalf("create test note: %v", err)
	}
	return note
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ytnotes/backend/internal/logging"
	"github.com/ytnotes/backend/internal/models"
	"github.com/ytnotes/backend/internal/pipeline"
	"github.com/ytnotes/backend/internal/repositories"
)

// NoteHandler provides endpoints for generating and managing note documents.
type NoteHandler struct {
	Notes    NoteStore
	Sessions SessionManager
	Pipeline NotePipeline
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

// Collection handles POST and GET /api/v1/notes.
func (h NoteHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.generate(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Detail handles GET, PATCH, and DELETE /api/v1/notes/{id}.
func (h NoteHandler) Detail(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPatch:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type generateRequest struct {
	Link string `json:"link"`
}

type updateNoteRequest struct {
	NotesContent *string `json:"notes_content"`
}

type noteResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	NotesContent  string    `json:"notes_content"`
	Transcript    string    `json:"transcript,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
	Status        string    `json:"status"`
	Degraded      bool      `json:"degraded"`
	FailureStage  string    `json:"failure_stage,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toNoteResponse(note models.Note) noteResponse {
	return noteResponse{
		ID:            note.ID,
		Title:         note.Title,
		Link:          note.Link,
		NotesContent:  note.NotesContent,
		Transcript:    note.Transcript,
		AudioURL:      note.AudioURL,
		Status:        note.Status,
		Degraded:      note.Degraded,
		FailureStage:  note.FailureStage,
		FailureReason: note.FailureReason,
		CreatedAt:     note.CreatedAt,
		UpdatedAt:     note.UpdatedAt,
	}
}

func (h NoteHandler) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if !allowRequest(h.Limiter, r, "notes-generate") {
		logger.Warn("note generation rate limited", "userId", userID)
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid generate payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if strings.TrimSpace(req.Link) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "link is required"})
		return
	}

	link, err := pipeline.NormalizeLink(req.Link)
	if err != nil {
		logger.Warn("rejected link", "link", req.Link, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"stage": pipeline.StageValidate,
		})
		return
	}

	now := h.now()
	note := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Link:      link,
		Status:    models.NoteStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Notes.Create(ctx, note); err != nil {
		logger.Error("create pending note", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create note"})
		return
	}

	if err := h.Pipeline.Enqueue(ctx, note.ID, note.Link); err != nil {
		logger.Error("enqueue note generation", "error", err, "noteId", note.ID)
		_ = h.Notes.Delete(ctx, userID, note.ID)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "note generation is busy, try again shortly"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, toNoteResponse(note))
}

func (h NoteHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	notes, err := h.Notes.ListForOwner(ctx, userID)
	if err != nil {
		logger.Error("list notes", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list notes"})
		return
	}

	out := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		out = append(out, toNoteResponse(note))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"notes": out})
}

func (h NoteHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}

	note, err := h.Notes.Get(ctx, userID, noteID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "note not found"})
			return
		}
		logger.Error("get note", "error", err, "noteId", noteID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch note"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, toNoteResponse(note))
}

func (h NoteHandler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.NotesContent == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "notes_content is required"})
		return
	}

	note, err := h.Notes.UpdateContent(ctx, userID, noteID, *req.NotesContent)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "note not found"})
			return
		}
		logger.Error("update note", "error", err, "noteId", noteID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update note"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, toNoteResponse(note))
}

func (h NoteHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}

	if err := h.Notes.Delete(ctx, userID, noteID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "note not found"})
			return
		}
		logger.Error("delete note", "error", err, "noteId", noteID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to delete note"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireUser resolves the bearer token to a user id, writing the error
// response itself when authentication fails.
func (h NoteHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()

	if h.Sessions == nil || h.Notes == nil {
		logging.FromContext(ctx).Error("note dependencies unavailable", "hasSessions", h.Sessions != nil, "hasNotes", h.Notes != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "note services unavailable"})
		return "", false
	}

	token := bearerToken(r)
	if token == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}

	userID, err := h.Sessions.Authenticate(ctx, token)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
		return "", false
	}

	return userID, true
}

func notePathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	noteID := strings.TrimPrefix(r.URL.Path, "/api/v1/notes/")
	if noteID == "" || strings.Contains(noteID, "/") {
		respondJSON(r.Context(), w, http.StatusNotFound, map[string]string{"error": "note not found"})
		return "", false
	}
	return noteID, true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (h NoteHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

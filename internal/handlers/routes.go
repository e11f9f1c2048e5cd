package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	notes := NoteHandler{
		Notes:    deps.Notes,
		Sessions: deps.Sessions,
		Pipeline: deps.Pipeline,
		Limiter:  deps.GenerateLimiter,
	}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/password-reset", auth.RequestPasswordReset)
	mux.HandleFunc("/api/v1/notes", notes.Collection)
	mux.HandleFunc("/api/v1/notes/", notes.Detail)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users           UserStore
	Sessions        SessionManager
	Notes           NoteStore
	Pipeline        NotePipeline
	GenerateLimiter RateLimiter
}

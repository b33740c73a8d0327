// ABOUTME: HTTP API for the orchestrator: workflow lifecycle and checkpoint decisions.
// ABOUTME: Maps driver errors to status codes: unknown id is 404, wrong checkpoint is 409.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autosci/orchestrator/workflow"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	driver *workflow.Driver
	router chi.Router
}

// NewServer builds the API server around a driver.
func NewServer(driver *workflow.Driver) *Server {
	s := &Server{driver: driver}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/workflow", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleStart)
		r.Post("/clear", s.handleClear)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/approve", s.handleApprove)
			r.Post("/reject", s.handleReject)
			r.Post("/schema/approve", s.handleSchemaApprove)
			r.Post("/schema/reject", s.handleSchemaReject)
			r.Post("/schema/callback", s.handleSchemaCallback)
			r.Post("/feedback", s.handleFeedback)
			r.Delete("/", s.handleDelete)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	Goal    string `json:"goal"`
	Locator string `json:"locator,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	rec, err := s.driver.Start(req.Goal, req.Locator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     rec.ID.String(),
		"status": "started",
	})
}

type statusResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Stage  string   `json:"stage"`
	Goal   string   `json:"goal"`
	Schema []string `json:"schema,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.driver.List()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]statusResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, statusResponse{
			ID:     rec.ID.String(),
			Status: rec.DerivedStatus(),
			Stage:  string(rec.Stage),
			Goal:   rec.Goal,
			Schema: rec.Source.CapturedSchema,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.driver.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:     rec.ID.String(),
		Status: rec.DerivedStatus(),
		Stage:  string(rec.Stage),
		Goal:   rec.Goal,
		Schema: rec.Source.CapturedSchema,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.ApproveDataset(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.RejectDataset(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleSchemaApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.ApproveSchema(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleSchemaReject(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.RejectSchema(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

type schemaCallbackRequest struct {
	Columns []string `json:"columns"`
}

func (s *Server) handleSchemaCallback(w http.ResponseWriter, r *http.Request) {
	var req schemaCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.driver.SchemaCallback(chi.URLParam(r, "id"), req.Columns); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type feedbackRequest struct {
	Satisfied bool   `json:"satisfied"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.driver.Feedback(chi.URLParam(r, "id"), req.Satisfied, req.Note); err != nil {
		writeError(w, err)
		return
	}

	status := "retrying"
	if req.Satisfied {
		status = "completed"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Clear(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workflow not found"})
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("component=api action=error error=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

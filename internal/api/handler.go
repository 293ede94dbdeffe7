package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/leadflow/internal/auth"
	"github.com/nidhogg/leadflow/internal/dispatch"
	"github.com/nidhogg/leadflow/internal/orchestrator"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch          *orchestrator.Orchestrator
	exec          dispatch.Executor
	store         workflow.Store
	verifier      auth.Verifier
	internalToken string
	logger        *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orch *orchestrator.Orchestrator, exec dispatch.Executor, store workflow.Store, verifier auth.Verifier, internalToken string, logger *zap.Logger) *Handler {
	return &Handler{
		orch:          orch,
		exec:          exec,
		store:         store,
		verifier:      verifier,
		internalToken: internalToken,
		logger:        logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Token"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// User-facing workflow routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.verifier))
			r.Post("/workflows", h.createWorkflow)
			r.Get("/workflows/{id}", h.getWorkflow)
			r.Get("/workflows/{id}/steps", h.listSteps)
		})

		// Internal agent-to-agent chain route
		r.Group(func(r chi.Router) {
			r.Use(h.requireInternal)
			r.Post("/agents/{kind}", h.executeStep)
		})
	})

	return r
}

// requireInternal guards the chain endpoint when an internal token is set.
func (h *Handler) requireInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.internalToken != "" && r.Header.Get("X-Internal-Token") != h.internalToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "leadflow"})
}

type createWorkflowRequest struct {
	Goal string `json:"goal"`
}

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}

	userID := auth.UserID(r.Context())
	wf, steps, err := h.orch.Start(r.Context(), userID, req.Goal)
	if err != nil {
		h.logger.Error("workflow creation failed", zap.String("user", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "workflow creation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": wf.ID,
		"steps":       steps,
	})
}

func (h *Handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) listSteps(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}
	steps, err := h.store.ListSteps(r.Context(), wf.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

// ownedWorkflow loads the workflow in the path and enforces tenancy.
// A foreign workflow reads as not found, never as forbidden.
func (h *Handler) ownedWorkflow(w http.ResponseWriter, r *http.Request) (*workflow.Workflow, bool) {
	id := chi.URLParam(r, "id")
	wf, err := h.store.GetWorkflow(r.Context(), id)
	if errors.Is(err, workflow.ErrNotFound) || (err == nil && wf.UserID != auth.UserID(r.Context())) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workflow not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return wf, true
}

func (h *Handler) executeStep(w http.ResponseWriter, r *http.Request) {
	kind, err := workflow.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
		return
	}

	var msg workflow.ChainMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	msg.Agent = kind

	output, err := h.exec.ExecuteStep(r.Context(), &msg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    output,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

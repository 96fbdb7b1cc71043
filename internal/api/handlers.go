package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/frontdesk/internal/storage"
	"github.com/kalambet/frontdesk/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Workflow is the resolution surface the HTTP layer drives.
type Workflow interface {
	HandleQuery(ctx context.Context, userID, text string) (workflow.QueryResult, error)
	HandleSupervisorResponse(ctx context.Context, requestID int64, rawAnswer string) (string, error)
	CheckUpdates(userID string) workflow.QueryResult
	ListPending() ([]storage.HelpRequest, error)
	DeletePending(requestID int64) error
}

// Polisher rewrites ad hoc text for the preview endpoint.
type Polisher interface {
	Polish(ctx context.Context, text string) (string, error)
}

// KnowledgeLister exposes the stored document texts for diagnostics.
type KnowledgeLister interface {
	All() []string
}

// Deps holds the handler dependencies.
type Deps struct {
	Workflow  Workflow
	Polisher  Polisher
	Knowledge KnowledgeLister
}

// NewHandler returns the HTTP API for queries, supervisor resolution,
// update polling, and knowledge diagnostics.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/health", handleHealth)
	r.Post("/query", handleQuery(deps))
	r.Post("/supervisor/respond", handleSupervisorRespond(deps))
	r.Get("/check_updates/{user_id}", handleCheckUpdates(deps))
	r.Get("/pending", handleListPending(deps))
	r.Delete("/pending/{request_id}", handleDeletePending(deps))
	r.Get("/knowledge", handleKnowledge(deps))
	r.Post("/refine", handleRefine(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type queryRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type queryResponse struct {
	Status  string `json:"status"`
	Answer  string `json:"answer,omitempty"`
	Message string `json:"message,omitempty"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "user_id is required")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "message is required")
			return
		}

		result, err := deps.Workflow.HandleQuery(r.Context(), req.UserID, req.Message)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling query: %v", err)
			return
		}

		writeJSON(w, queryResponse{
			Status:  result.Status,
			Answer:  result.Answer,
			Message: result.Message,
		})
	}
}

type supervisorRequest struct {
	RequestID int64  `json:"request_id"`
	Answer    string `json:"answer"`
}

func handleSupervisorRespond(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req supervisorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
			return
		}
		if req.RequestID <= 0 {
			httpError(w, http.StatusBadRequest, "validation_error", "request_id is required")
			return
		}
		if strings.TrimSpace(req.Answer) == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "answer is required")
			return
		}

		refined, err := deps.Workflow.HandleSupervisorResponse(r.Context(), req.RequestID, req.Answer)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no pending request with id %d", req.RequestID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling supervisor response: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"status":         "updated",
			"message":        "Refined answer added to knowledge base and queued for client.",
			"refined_answer": refined,
		})
	}
}

func handleCheckUpdates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "user_id is required")
			return
		}

		result := deps.Workflow.CheckUpdates(userID)
		writeJSON(w, queryResponse{
			Status:  result.Status,
			Answer:  result.Answer,
			Message: result.Message,
		})
	}
}

type pendingEntry struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	Status   string `json:"status"`
}

func handleListPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := deps.Workflow.ListPending()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing pending requests: %v", err)
			return
		}

		out := make(map[string]pendingEntry, len(pending))
		for _, req := range pending {
			out[strconv.FormatInt(req.ID, 10)] = pendingEntry{
				UserID:   req.UserID,
				Question: req.Question,
				Status:   req.Status,
			}
		}
		writeJSON(w, out)
	}
}

func handleDeletePending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "request_id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "invalid request id")
			return
		}

		if err := deps.Workflow.DeletePending(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no request with id %d", id)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting request: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"status":  "deleted",
			"message": fmt.Sprintf("Request %d deleted successfully.", id),
		})
	}
}

func handleKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		texts := deps.Knowledge.All()
		if texts == nil {
			texts = []string{}
		}
		writeJSON(w, texts)
	}
}

type refineRequest struct {
	Prompt string `json:"prompt"`
}

func handleRefine(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req refineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "prompt is required")
			return
		}

		refined, err := deps.Polisher.Polish(r.Context(), req.Prompt)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "polishing text: %v", err)
			return
		}

		writeJSON(w, map[string]string{"refined_answer": refined})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

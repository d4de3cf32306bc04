// Package httpapi exposes the platform's REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/simsynai/platform/internal/app"
	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/metrics"
	simulationsvc "github.com/simsynai/platform/internal/app/services/simulation"
	"github.com/simsynai/platform/internal/app/services/users"
	"github.com/simsynai/platform/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API, instrumented for
// metrics.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/auth/register", h.register)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/users/me", h.requireAuth(h.me))
	mux.HandleFunc("/tasks", h.requireAuth(h.tasks))
	mux.HandleFunc("/tasks/", h.requireAuth(h.taskResources))
	mux.HandleFunc("/models", h.requireAuth(h.models))
	mux.HandleFunc("/models/parameters", h.requireAuth(h.modelParameters))
	mux.HandleFunc("/chat/messages", h.requireAuth(h.chatMessages))
	return metrics.InstrumentHandler(mux)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload users.RegisterInput
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Users.Register(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Users.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	token, err := h.app.Users.IssueToken(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		u, err := h.app.Users.Get(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, u)

	case http.MethodPatch:
		var payload users.UpdateInput
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		u, err := h.app.Users.Update(r.Context(), claims.UserID, payload)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, u)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	switch r.Method {
	case http.MethodPost:
		var payload simulationsvc.CreateTaskInput
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		task, err := h.app.Simulations.CreateTask(r.Context(), claims.UserID, payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, task)

	case http.MethodGet:
		skip := queryInt(r, "skip", 0)
		limit := queryInt(r, "limit", 100)
		tasks, err := h.app.Simulations.ListTasks(r.Context(), claims.UserID, skip, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) taskResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	taskID := parts[0]

	task, err := h.app.Simulations.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	claims := claimsFrom(r.Context())
	if task.OwnerID != claims.UserID {
		writeError(w, http.StatusForbidden, fmt.Errorf("task %s does not belong to you", taskID))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, task)
		case http.MethodPatch:
			h.updateTask(w, r, taskID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "execute":
		h.executeTask(w, r, taskID)
	case "result":
		h.taskResult(w, r, taskID)
	case "stop":
		h.stopTask(w, r, taskID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var patch simulation.TaskPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := h.app.Simulations.UpdateTask(r.Context(), taskID, patch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if task == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("task %s has started or finished and can no longer be updated", taskID))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handler) executeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Runner.Enqueue(taskID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  "queued",
	})
}

func (h *handler) taskResult(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.app.Simulations.GetTaskResult(r.Context(), taskID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) stopTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stopped := h.app.Simulations.StopTask(r.Context(), taskID)
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"stopped": stopped,
	})
}

func (h *handler) models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Simulations.GetAvailableModels(r.Context()))
}

func (h *handler) modelParameters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	modelPath := r.URL.Query().Get("path")
	if modelPath == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path query parameter is required"))
		return
	}
	params, err := h.app.Simulations.GetModelParameters(r.Context(), modelPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *handler) chatMessages(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Content string `json:"content"`
			TaskID  string `json:"task_id"`
			Model   string `json:"model"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		msg, err := h.app.Chat.ProcessMessage(r.Context(), claims.UserID, payload.TaskID, payload.Content, payload.Model)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)

	case http.MethodGet:
		limit := queryInt(r, "limit", 50)
		msgs, err := h.app.Chat.History(r.Context(), claims.UserID, r.URL.Query().Get("task_id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

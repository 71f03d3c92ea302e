package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fenwick-io/task-agent/internal/api/shared"
	"github.com/fenwick-io/task-agent/internal/domain"
	"github.com/fenwick-io/task-agent/internal/task"
)

// TaskService is the engine surface the gateway depends on.
type TaskService interface {
	Submit(payload map[string]any) (*domain.Task, error)
	Get(id uuid.UUID) (*domain.Task, error)
	List(status, taskType string) []*domain.Task
	Cancel(id uuid.UUID) error
	Metrics() task.MetricsSnapshot
}

// InferenceRequest represents the request body for submitting an inference task
type InferenceRequest struct {
	Input   string         `json:"input" validate:"required,min=1"`
	Type    string         `json:"type,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// SubmitResponse represents the response for a newly submitted task
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskResponse represents the response data for a single task
type TaskResponse struct {
	TaskID      string         `json:"task_id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Progress    float64        `json:"progress"`
	CreatedAt   string         `json:"created_at"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// TaskListResponse represents the response for a task listing
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

// HealthResponse represents the liveness probe response
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	TasksCount int    `json:"tasks_count"`
}

// Version reported by the health endpoint.
const Version = "1.0.0"

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	service   TaskService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// SubmitTask handles POST /api/task/inference requests. The task is created
// synchronously and executed asynchronously, so the response is 202 Accepted
// with the task's ID and initial status.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req InferenceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	payload := map[string]any{"input": req.Input}
	if req.Type != "" {
		payload["type"] = req.Type
	}
	if req.Options != nil {
		payload["options"] = req.Options
	}

	created, err := h.service.Submit(payload)
	if err != nil {
		h.logger.Error("failed to submit task", "error", err)
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
		TaskID: created.ID.String(),
		Status: string(created.Status),
	})
}

// GetTask handles GET /api/task/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// ListTasks handles GET /api/tasks requests with optional status and type
// query filters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	taskType := r.URL.Query().Get("type")

	tasks := h.service.List(status, taskType)

	responses := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, taskToResponse(t))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: responses,
		Count: len(responses),
	})
}

// CancelTask handles DELETE /api/task/{id} requests
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(id); err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	t, err := h.service.Get(id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// Health handles GET /api/health requests, reporting liveness and the
// current number of tracked tasks.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	m := h.service.Metrics()
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    Version,
		TasksCount: m.TotalTasks,
	})
}

// Metrics handles GET /api/metrics requests with a JSON snapshot of
// aggregate engine activity.
func (h *TaskHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.Metrics())
}

// taskID extracts and parses the task ID path parameter. A malformed ID is
// reported as not found, matching the contract that an unknown identifier
// is never surfaced as a different condition.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return uuid.Nil, false
	}
	return id, true
}

// taskToResponse converts a domain.Task to a TaskResponse
func taskToResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:    t.ID.String(),
		Type:      t.Type,
		Status:    string(t.Status),
		Result:    t.Result,
		Error:     t.Error,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt.Format(time.RFC3339Nano),
	}
	if t.StartedAt != nil {
		resp.StartedAt = t.StartedAt.Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return resp
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service"
)

// TaskHandler handles rewrite task HTTP requests
type TaskHandler struct {
	rewriteService service.RewriteService
	logger         *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(rewriteService service.RewriteService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		rewriteService: rewriteService,
		logger:         logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks requests.
// The task is persisted and charged synchronously; generation happens in
// the background, so the response is 202 Accepted.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	task, err := h.rewriteService.Create(r.Context(), userID, req.toInput())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Info("task accepted",
		slog.String("user_id", userID.String()),
		slog.String("task_id", task.ID.String()),
		slog.Int("items", task.TotalItems))
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskResponse{Task: task})
}

// ListTasks handles GET /api/tasks requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.rewriteService.List(r.Context(), userID, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetTask handles GET /api/tasks/{id} requests. It is the polling
// endpoint: progress is recomputed from the item rows on every call.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	view, err := h.rewriteService.Status(r.Context(), taskID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// ReprocessTask handles POST /api/tasks/{id}/reprocess requests.
// Every failed item of the task is charged and dispatched again.
func (h *TaskHandler) ReprocessTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	accepted, err := h.rewriteService.Reprocess(r.Context(), userID, service.ReprocessTarget{TaskID: taskID})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reprocess task")
		return
	}

	log.Info("task reprocess accepted",
		slog.String("task_id", taskID.String()),
		slog.Int("accepted", accepted))
	shared.RespondWithJSON(w, r, http.StatusAccepted, ReprocessResponse{Accepted: accepted})
}

// ReprocessItem handles POST /api/items/{id}/reprocess requests.
func (h *TaskHandler) ReprocessItem(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, itemID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	accepted, err := h.rewriteService.Reprocess(r.Context(), userID, service.ReprocessTarget{ItemID: itemID})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reprocess item")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, ReprocessResponse{Accepted: accepted})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"keyforge/dto"
	"keyforge/meshy"
	"keyforge/middleware"
	"keyforge/repository"
	"keyforge/service"
	"keyforge/validation"
)

// TaskService is the surface the HTTP layer needs from the task service.
type TaskService interface {
	Create(ctx context.Context, ownerID, traceID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error)
	Status(ctx context.Context, taskID, ownerID string) (*dto.TaskResponse, error)
	HandleWebhook(ctx context.Context, payload map[string]interface{}) (*dto.WebhookAck, error)
}

type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

func NewTaskHandler(service TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	ownerID, err := middleware.GetOwnerID(r.Context())
	if err != nil {
		h.handleError(w, "Unauthorized", err, traceID, http.StatusUnauthorized)
		return
	}

	var req dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Create(r.Context(), ownerID, traceID, &req)
	if err != nil {
		switch {
		case validation.Is(err) || errors.Is(err, meshy.ErrUnknownMode):
			h.handleError(w, err.Error(), err, traceID, http.StatusBadRequest)
		case isProviderError(err):
			h.handleError(w, "Generation provider rejected the request", err, traceID, http.StatusBadGateway)
		default:
			h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("Task created",
		zap.String("trace_id", traceID),
		zap.String("task_id", resp.ID),
		zap.String("mode", resp.Mode),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodGet {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	ownerID, err := middleware.GetOwnerID(r.Context())
	if err != nil {
		h.handleError(w, "Unauthorized", err, traceID, http.StatusUnauthorized)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Status(r.Context(), taskID, ownerID)
	if err != nil {
		// A task owned by someone else is indistinguishable from a
		// nonexistent one.
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Webhook receives provider callbacks. It is unauthenticated on purpose: the
// payload only names a provider job id, and an unknown id is acknowledged
// without side effects.
func (h *TaskHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.handleError(w, "Invalid webhook payload", err, traceID, http.StatusBadRequest)
		return
	}

	ack, err := h.service.HandleWebhook(r.Context(), payload)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.respondJSON(w, http.StatusNotFound, dto.WebhookAck{Status: "not_found"})
			return
		}
		if errors.Is(err, service.ErrWebhookMissingID) {
			h.handleError(w, "Webhook payload missing task id", err, traceID, http.StatusBadRequest)
			return
		}
		h.handleError(w, "Failed to process webhook", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, ack)
}

func isProviderError(err error) bool {
	var apiErr *meshy.APIError
	return errors.As(err, &apiErr)
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

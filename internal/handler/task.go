package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-flow-api/internal/model"
	"github.com/BuzzLyutic/task-flow-api/internal/repo"
	"github.com/BuzzLyutic/task-flow-api/internal/service"
	"github.com/BuzzLyutic/task-flow-api/pkg/respond"
)

type TaskHandler struct {
	service  *service.TaskService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service:  srv,
		validate: validator.New(),
		logger:   logger,
	}
}

type createTaskRequest struct {
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description"`
	Status      model.Status   `json:"status" validate:"omitempty,oneof=pending in_progress"`
	Priority    model.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time     `json:"due_date"`
	OwnerID     uuid.UUID      `json:"owner_id"`
}

type updateTaskRequest struct {
	Title       *string         `json:"title" validate:"omitempty,min=1"`
	Description *string         `json:"description"`
	Status      *model.Status   `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
	Priority    *model.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time      `json:"due_date"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("validation: %v", err))
		return
	}

	idempKey := r.Header.Get("Idempotency-Key")
	task, err := h.service.Create(r.Context(), model.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		OwnerID:     req.OwnerID,
	}, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%s", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter model.TaskFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := model.Status(s)
		if !status.Valid() {
			respond.Error(w, r, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		priority := model.Priority(p)
		if !priority.Valid() {
			respond.Error(w, r, http.StatusBadRequest, "invalid priority filter")
			return
		}
		filter.Priority = &priority
	}

	var page model.Pagination
	page.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	page.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	tasks, total, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.List(w, r, http.StatusOK, tasks, total)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid task id")
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("validation: %v", err))
		return
	}

	task, err := h.service.Update(r.Context(), id, model.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, repo.ErrorUnavailable):
		respond.Error(w, r, http.StatusServiceUnavailable, "store unavailable")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, "validation error")
	case errors.Is(err, service.ErrTransition):
		respond.Error(w, r, http.StatusBadRequest, "invalid status transition")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}

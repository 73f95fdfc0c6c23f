// Package api implements the Taskhive REST handlers.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/taskhive/taskhive/ai"
	"github.com/taskhive/taskhive/mail"
	"github.com/taskhive/taskhive/pubsub"
	"github.com/taskhive/taskhive/store"
	"github.com/taskhive/taskhive/task"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks     *store.Tasks
	Store     *store.Client
	Assistant *ai.Service
	Mailer    mail.Mailer
	Publisher pubsub.Publisher
	Logger    *slog.Logger
	Version   string
	StartAt   int64 // unix timestamp of server start
	PageSize  int   // default page size
	MaxPage   int   // page size ceiling
}

// RegisterRoutes registers the authenticated API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("POST /api/ai/suggestions", h.aiSuggestions)
	mux.HandleFunc("POST /api/ai/enhance", h.aiEnhance)
	mux.HandleFunc("POST /api/ai/nlp/parse-task", h.aiParseTask)
	mux.HandleFunc("GET /api/ai/prioritize", h.aiPrioritize)
	mux.HandleFunc("POST /api/ai/documents/generate", h.aiGenerateDocument)
	mux.HandleFunc("POST /api/ai/reports/generate", h.aiGenerateReport)
	mux.HandleFunc("POST /api/ai/search/semantic", h.aiSemanticSearch)
	mux.HandleFunc("POST /api/ai/voice/parse", h.aiVoiceCommand)
	mux.HandleFunc("POST /api/ai/chat", h.aiChat)
	mux.HandleFunc("GET /api/ai/automations/analyze", h.aiAutomations)

	mux.HandleFunc("POST /api/notifications/send-reminder", h.sendReminderNow)
	mux.HandleFunc("POST /api/notifications/test-email", h.testEmail)
}

// RegisterAdminRoutes registers routes gated behind the admin role.
func (h *Handlers) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/stats", h.adminStats)
	mux.HandleFunc("GET /api/admin/users", h.adminListUsers)
	mux.HandleFunc("POST /api/admin/users", h.adminCreateUser)
	mux.HandleFunc("GET /api/admin/users/{id}", h.adminGetUser)
	mux.HandleFunc("PUT /api/admin/users/{id}", h.adminUpdateUser)
	mux.HandleFunc("DELETE /api/admin/users/{id}", h.adminDeleteUser)
	mux.HandleFunc("POST /api/admin/users/bulk-update-role", h.adminBulkUpdateRoles)
	mux.HandleFunc("DELETE /api/admin/users/bulk-delete", h.adminBulkDeleteUsers)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireIdentity fetches the caller identity or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
	}
	return id, ok
}

// pagination resolves page/page_size query params against the
// configured defaults and ceiling.
func (h *Handlers) pagination(r *http.Request) (page, size int) {
	page, size = 1, h.PageSize
	if size <= 0 {
		size = 20
	}
	maxSize := h.MaxPage
	if maxSize <= 0 {
		maxSize = 100
	}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		size = v
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

// taskPage is the list envelope returned by GET /api/tasks.
type taskPage struct {
	Tasks    []task.Task `json:"tasks"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	HasMore  bool        `json:"has_more"`
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	page, size := h.pagination(r)
	q := r.URL.Query()
	filter := store.TaskFilter{
		OwnerID:  id.UserID,
		Status:   task.Status(q.Get("status")),
		Priority: task.Priority(q.Get("priority")),
		Category: q.Get("category"),
		Limit:    size,
		Offset:   (page - 1) * size,
	}

	tasks, err := h.Tasks.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list tasks", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}
	total, err := h.Tasks.CountTasks(r.Context(), filter)
	if err != nil {
		h.Logger.Error("count tasks", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	writeJSON(w, http.StatusOK, taskPage{
		Tasks:    tasks,
		Total:    total,
		Page:     page,
		PageSize: size,
		HasMore:  page*size < total,
	})
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	t.ID = ""
	t.OwnerID = id.UserID

	created, err := h.Tasks.Create(r.Context(), &t)
	if err != nil {
		h.Logger.Error("create task", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not create task")
		return
	}

	h.Publisher.PublishTaskEvent(id.UserID, pubsub.EventCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	t, err := h.Tasks.Get(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Logger.Error("get task", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// updatableFields lists the request keys a task update may touch.
// Ownership and bookkeeping columns are never client-writable.
var updatableFields = map[string]bool{
	"title":        true,
	"description":  true,
	"status":       true,
	"priority":     true,
	"category":     true,
	"tags":         true,
	"due_date":     true,
	"completed_at": true,
	"ai_generated": true,
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	changes := make(map[string]any, len(body))
	for k, v := range body {
		if updatableFields[k] {
			changes[k] = v
		}
	}
	if len(changes) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no updatable fields in request")
		return
	}
	if v, ok := changes["status"].(string); ok && !task.ValidStatus(task.Status(v)) {
		writeError(w, http.StatusUnprocessableEntity, "invalid status "+strconv.Quote(v))
		return
	}
	if v, ok := changes["priority"].(string); ok && !task.ValidPriority(task.Priority(v)) {
		writeError(w, http.StatusUnprocessableEntity, "invalid priority "+strconv.Quote(v))
		return
	}
	if v, ok := changes["due_date"].(string); ok && v != "" {
		if _, err := task.ParseDueDate(v); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid due_date")
			return
		}
	}

	updated, err := h.Tasks.Update(r.Context(), id.UserID, r.PathValue("id"), changes)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Logger.Error("update task", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not update task")
		return
	}

	h.Publisher.PublishTaskEvent(id.UserID, pubsub.EventUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	taskID := r.PathValue("id")
	if err := h.Tasks.Delete(r.Context(), id.UserID, taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Logger.Error("delete task", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not delete task")
		return
	}

	h.Publisher.PublishTaskEvent(id.UserID, pubsub.EventDeleted, map[string]string{"id": taskID})
	w.WriteHeader(http.StatusNoContent)
}

type sendReminderRequest struct {
	TaskID string `json:"task_id"`
}

// sendReminderNow emails the caller a reminder for one of their tasks,
// bypassing the scheduler's windows.
func (h *Handlers) sendReminderNow(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	t, err := h.Tasks.Get(r.Context(), id.UserID, req.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Logger.Error("get task for reminder", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	if !h.Mailer.SendTaskReminder(r.Context(), id.Email, *t) {
		writeError(w, http.StatusInternalServerError, "reminder email could not be sent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "recipient": id.Email})
}

// testEmail sends a synthetic reminder to the caller to verify SMTP
// settings end to end.
func (h *Handlers) testEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	probe := task.Task{
		Title:       "Taskhive email configuration test",
		Description: "If you are reading this, reminder delivery works.",
		Priority:    task.PriorityLow,
		DueDate:     time.Now().Add(time.Hour).Format("2006-01-02T15:04:05"),
	}
	if !h.Mailer.SendTaskReminder(r.Context(), id.Email, probe) {
		writeError(w, http.StatusInternalServerError, "test email could not be sent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "recipient": id.Email})
}

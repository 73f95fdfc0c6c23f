package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskhive/taskhive/store"
	"github.com/taskhive/taskhive/task"
)

// adminStats reports task counts by status across all users.
func (h *Handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	totals := map[string]int{}
	total := 0
	for _, status := range []task.Status{
		task.StatusTodo, task.StatusInProgress, task.StatusCompleted, task.StatusArchived,
	} {
		n, err := h.Tasks.CountTasks(r.Context(), store.TaskFilter{Status: status})
		if err != nil {
			h.Logger.Error("admin stats", slog.String("status", string(status)), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "task store unavailable")
			return
		}
		totals[string(status)] = n
		total += n
	}

	users, err := h.Store.Count(r.Context(), "profiles", nil)
	if err != nil {
		h.Logger.Error("admin stats: count users", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	completionRate := 0.0
	if total > 0 {
		completionRate = float64(totals[string(task.StatusCompleted)]) / float64(total)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks_total":     total,
		"tasks_by_status": totals,
		"users_total":     users,
		"completion_rate": completionRate,
	})
}

// adminListUsers pages through the profiles table.
func (h *Handlers) adminListUsers(w http.ResponseWriter, r *http.Request) {
	page, size := h.pagination(r)
	profiles, err := h.Store.ListProfiles(r.Context(), size, (page-1)*size)
	if err != nil {
		h.Logger.Error("admin list users", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}
	total, err := h.Store.Count(r.Context(), "profiles", nil)
	if err != nil {
		h.Logger.Error("admin count users", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":     profiles,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

// adminGetUser returns one user's profile.
func (h *Handlers) adminGetUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Store.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// adminCreateUser provisions an account directly, bypassing the
// public signup flow.
func (h *Handlers) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Email == "" || len(body.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "email and a password of at least 8 characters are required")
		return
	}
	if body.Role == "" {
		body.Role = "user"
	}
	if body.Role != "user" && body.Role != "admin" {
		writeError(w, http.StatusUnprocessableEntity, "role must be user or admin")
		return
	}

	user, err := h.Store.AdminCreateUser(r.Context(), body.Email, body.Password, body.FullName, body.Role)
	if err != nil {
		h.Logger.Error("admin create user", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// adminUpdatableFields are the profile columns an admin may change.
var adminUpdatableFields = map[string]bool{
	"full_name":  true,
	"role":       true,
	"avatar_url": true,
}

// adminUpdateUser patches a user's profile row.
func (h *Handlers) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	changes := make(map[string]any, len(body))
	for k, v := range body {
		if adminUpdatableFields[k] {
			changes[k] = v
		}
	}
	if len(changes) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no updatable fields in request")
		return
	}
	if role, ok := changes["role"].(string); ok && role != "user" && role != "admin" {
		writeError(w, http.StatusUnprocessableEntity, "role must be user or admin")
		return
	}

	profile, err := h.Store.UpdateProfile(r.Context(), r.PathValue("id"), changes)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.Logger.Error("admin update user", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not update user")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// adminDeleteUser removes an account. Admins cannot delete themselves.
func (h *Handlers) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")
	if userID == id.UserID {
		writeError(w, http.StatusUnprocessableEntity, "cannot delete your own account")
		return
	}

	if err := h.Store.AdminDeleteUser(r.Context(), userID); err != nil {
		h.Logger.Error("admin delete user", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "could not delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkRoleRequest struct {
	UserIDs []string `json:"user_ids"`
	Role    string   `json:"role"`
}

// adminBulkUpdateRoles sets the role on a batch of users. Per-user
// failures are logged and skipped; the response carries the count
// that went through.
func (h *Handlers) adminBulkUpdateRoles(w http.ResponseWriter, r *http.Request) {
	var body bulkRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.UserIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "user_ids is required")
		return
	}
	if body.Role != "user" && body.Role != "admin" {
		writeError(w, http.StatusUnprocessableEntity, "role must be user or admin")
		return
	}

	updated := 0
	for _, userID := range body.UserIDs {
		if _, err := h.Store.UpdateProfile(r.Context(), userID, map[string]any{"role": body.Role}); err != nil {
			h.Logger.Warn("bulk role update", slog.String("user", userID), slog.Any("err", err))
			continue
		}
		updated++
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

type bulkDeleteRequest struct {
	UserIDs []string `json:"user_ids"`
}

// adminBulkDeleteUsers removes a batch of accounts, never the
// caller's own.
func (h *Handlers) adminBulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var body bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.UserIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "user_ids is required")
		return
	}

	deleted := 0
	for _, userID := range body.UserIDs {
		if userID == id.UserID {
			h.Logger.Warn("bulk delete skipped caller's own account", slog.String("user", userID))
			continue
		}
		if err := h.Store.AdminDeleteUser(r.Context(), userID); err != nil {
			h.Logger.Warn("bulk delete user", slog.String("user", userID), slog.Any("err", err))
			continue
		}
		deleted++
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}


package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/taskhive/taskhive/ai"
	"github.com/taskhive/taskhive/store"
	"github.com/taskhive/taskhive/task"
)

// requireAssistant writes a 503 when no AI provider is configured.
func (h *Handlers) requireAssistant(w http.ResponseWriter) bool {
	if h.Assistant == nil || !h.Assistant.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "AI features are not configured")
		return false
	}
	return true
}

// callerTasks loads the caller's tasks for prompt context.
func (h *Handlers) callerTasks(ctx context.Context, userID string, limit int) ([]task.Task, error) {
	return h.Tasks.List(ctx, store.TaskFilter{OwnerID: userID, Limit: limit})
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	return &v, true
}

type suggestionsRequest struct {
	Goal string `json:"goal"`
}

func (h *Handlers) aiSuggestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[suggestionsRequest](w, r)
	if !ok {
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusUnprocessableEntity, "goal is required")
		return
	}

	suggestions, err := h.Assistant.Suggestions(r.Context(), req.Goal)
	if err != nil {
		h.Logger.Error("ai suggestions", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type enhanceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handlers) aiEnhance(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[enhanceRequest](w, r)
	if !ok {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}

	enhanced, err := h.Assistant.Enhance(r.Context(), req.Title, req.Description)
	if err != nil {
		h.Logger.Error("ai enhance", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": enhanced})
}

type parseTaskRequest struct {
	Input string `json:"input"`
}

func (h *Handlers) aiParseTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[parseTaskRequest](w, r)
	if !ok {
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusUnprocessableEntity, "input is required")
		return
	}

	draft, err := h.Assistant.ParseTask(r.Context(), req.Input)
	if err != nil {
		h.Logger.Error("ai parse task", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *Handlers) aiPrioritize(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 50)
	if err != nil {
		h.Logger.Error("load tasks for prioritize", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	suggestions, err := h.Assistant.Prioritize(r.Context(), tasks)
	if err != nil {
		h.Logger.Error("ai prioritize", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type documentRequest struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

func (h *Handlers) aiGenerateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[documentRequest](w, r)
	if !ok {
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 100)
	if err != nil {
		h.Logger.Error("load tasks for document", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	doc, err := h.Assistant.GenerateDocument(r.Context(), req.Type, tasks, req.Prompt)
	if err != nil {
		h.Logger.Error("ai document", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": req.Type, "content": doc})
}

type reportRequest struct {
	Type      string `json:"type"`
	DateRange string `json:"date_range"`
}

func (h *Handlers) aiGenerateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[reportRequest](w, r)
	if !ok {
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 100)
	if err != nil {
		h.Logger.Error("load tasks for report", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	report, err := h.Assistant.GenerateReport(r.Context(), req.Type, tasks, req.DateRange)
	if err != nil {
		h.Logger.Error("ai report", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": req.Type, "content": report})
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *Handlers) aiSemanticSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[searchRequest](w, r)
	if !ok {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusUnprocessableEntity, "query is required")
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 200)
	if err != nil {
		h.Logger.Error("load tasks for search", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	results, err := h.Assistant.SemanticSearch(r.Context(), req.Query, tasks)
	if err != nil {
		h.Logger.Error("ai search", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type voiceCommandRequest struct {
	Transcript string `json:"transcript"`
}

func (h *Handlers) aiVoiceCommand(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[voiceCommandRequest](w, r)
	if !ok {
		return
	}
	if req.Transcript == "" {
		writeError(w, http.StatusUnprocessableEntity, "transcript is required")
		return
	}

	cmd, err := h.Assistant.ParseVoiceCommand(r.Context(), req.Transcript)
	if err != nil {
		h.Logger.Error("ai voice command", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// aiAutomations analyzes the caller's recent tasks for automation
// opportunities.
func (h *Handlers) aiAutomations(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 100)
	if err != nil {
		h.Logger.Error("load tasks for automations", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	analysis, err := h.Assistant.AnalyzeAutomations(r.Context(), tasks)
	if err != nil {
		h.Logger.Error("ai automations", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type chatRequest struct {
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

func (h *Handlers) aiChat(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.requireAssistant(w) {
		return
	}
	req, ok := decodeBody[chatRequest](w, r)
	if !ok {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	mode := ai.ChatModeHelp
	switch req.Mode {
	case "", "help":
	case "coach":
		mode = ai.ChatModeCoach
	default:
		writeError(w, http.StatusUnprocessableEntity, "mode must be help or coach")
		return
	}

	tasks, err := h.callerTasks(r.Context(), id.UserID, 50)
	if err != nil {
		h.Logger.Error("load tasks for chat", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "task store unavailable")
		return
	}

	reply, err := h.Assistant.Chat(r.Context(), mode, req.Message, tasks)
	if err != nil {
		h.Logger.Error("ai chat", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "AI provider failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

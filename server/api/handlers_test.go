package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/taskhive/taskhive/ai"
	"github.com/taskhive/taskhive/provider"
	"github.com/taskhive/taskhive/pubsub"
	"github.com/taskhive/taskhive/server/api"
	"github.com/taskhive/taskhive/store"
	"github.com/taskhive/taskhive/task"
)

// --- Test doubles ---

type recordedEvent struct {
	ownerID   string
	eventType string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) PublishTaskEvent(ownerID, eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{ownerID: ownerID, eventType: eventType})
}

type fakeMailer struct {
	recipients []string
	fail       bool
}

func (m *fakeMailer) SendTaskReminder(_ context.Context, recipient string, _ task.Task) bool {
	if m.fail {
		return false
	}
	m.recipients = append(m.recipients, recipient)
	return true
}

// fakeBackend emulates the slice of the PostgREST API the handlers
// exercise.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	taskRows := `[
		{"id":"t1","owner_id":"user-1","title":"First","status":"todo","priority":"high"},
		{"id":"t2","owner_id":"user-1","title":"Second","status":"completed","priority":"low"}
	]`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/rest/v1/tasks") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
				w.Header().Set("Content-Range", "0-1/2")
			}
			if r.URL.Query().Get("id") == "eq.missing" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(taskRows))
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var in task.Task
			_ = json.Unmarshal(body, &in)
			in.ID = "t-new"
			out, _ := json.Marshal([]task.Task{in})
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(out)
		case http.MethodPatch:
			if r.URL.Query().Get("id") == "eq.missing" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"t1","owner_id":"user-1","title":"Patched","status":"in_progress","priority":"high"}]`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func newTestHandlers(t *testing.T, backendURL string) (*api.Handlers, *fakePublisher, *fakeMailer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := store.New(backendURL, "anon", "service", logger)
	publisher := &fakePublisher{}
	mailer := &fakeMailer{}
	return &api.Handlers{
		Tasks:     store.NewTasks(client),
		Store:     client,
		Mailer:    mailer,
		Publisher: publisher,
		Logger:    logger,
		Version:   "test",
		PageSize:  20,
		MaxPage:   100,
	}, publisher, mailer
}

func newTestMux(t *testing.T, h *api.Handlers) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func authedRequest(method, target string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	ctx := api.ContextWithIdentity(r.Context(), api.Identity{
		UserID: "user-1",
		Email:  "alice@example.com",
		Role:   "user",
	})
	return r.WithContext(ctx)
}

func TestListTasks_Envelope(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/tasks?page=1&page_size=20", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Tasks    []task.Task `json:"tasks"`
		Total    int         `json:"total"`
		Page     int         `json:"page"`
		PageSize int         `json:"page_size"`
		HasMore  bool        `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Tasks) != 2 || page.Total != 2 || page.Page != 1 || page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestListTasks_PageSizeCapped(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/tasks?page_size=9999", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page struct {
		PageSize int `json:"page_size"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.PageSize != 100 {
		t.Errorf("page_size = %d, want capped at 100", page.PageSize)
	}
}

func TestCreateTask_PublishesEvent(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, publisher, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"title": "Write the report"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/tasks", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.OwnerID != "user-1" {
		t.Errorf("owner = %q, want the caller", created.OwnerID)
	}
	if created.Status != task.StatusTodo || created.Priority != task.PriorityMedium {
		t.Errorf("defaults not applied: %+v", created)
	}
	if len(publisher.events) != 1 || publisher.events[0].eventType != pubsub.EventCreated {
		t.Errorf("events = %+v", publisher.events)
	}
}

func TestCreateTask_RejectsEmptyTitle(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, publisher, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"title": "   "})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/tasks", body))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if len(publisher.events) != 0 {
		t.Errorf("no event expected, got %+v", publisher.events)
	}
}

func TestUpdateTask_FiltersProtectedFields(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, publisher, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]any{
		"status":   "in_progress",
		"owner_id": "someone-else",
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/tasks/t1", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(publisher.events) != 1 || publisher.events[0].eventType != pubsub.EventUpdated {
		t.Errorf("events = %+v", publisher.events)
	}
}

func TestUpdateTask_OnlyProtectedFields(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]any{"owner_id": "someone-else"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/tasks/t1", body))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUpdateTask_InvalidStatus(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]any{"status": "paused"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/tasks/t1", body))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]any{"status": "completed"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPatch, "/api/tasks/missing", body))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/tasks/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteTask_PublishesEvent(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, publisher, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/tasks/t1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(publisher.events) != 1 || publisher.events[0].eventType != pubsub.EventDeleted {
		t.Errorf("events = %+v", publisher.events)
	}
}

func TestSendReminderNow(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, mailer := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"task_id": "t1"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/notifications/send-reminder", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(mailer.recipients) != 1 || mailer.recipients[0] != "alice@example.com" {
		t.Errorf("recipients = %v", mailer.recipients)
	}
}

func TestSendReminderNow_MailFailure(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, mailer := newTestHandlers(t, backend.URL)
	mailer.fail = true
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"task_id": "t1"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/notifications/send-reminder", body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestAISuggestions(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.Assistant = ai.New(&provider.MockProvider{
		Response: "1. Outline the chapters\n2. Draft the introduction\n3. Collect references",
	}, logger)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"goal": "write a book"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/ai/suggestions", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Suggestions) != 3 || got.Suggestions[0] != "Outline the chapters" {
		t.Errorf("suggestions = %v", got.Suggestions)
	}
}

func TestAIAutomationsAnalyze(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.Assistant = ai.New(&provider.MockProvider{
		Response: `{"automations":[{"type":"recurring_pattern","description":"Weekly report recurs","suggestion":"Create it automatically","tasks_affected":["t1"],"confidence":"medium"}],"insights":["Two tasks pending"]}`,
	}, logger)
	mux := newTestMux(t, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/ai/automations/analyze", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Automations []struct {
			Type          string   `json:"type"`
			TasksAffected []string `json:"tasks_affected"`
		} `json:"automations"`
		Insights []string `json:"insights"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Automations) != 1 || got.Automations[0].Type != "recurring_pattern" {
		t.Errorf("automations = %+v", got.Automations)
	}
	if len(got.Insights) != 1 {
		t.Errorf("insights = %v", got.Insights)
	}
}

func TestAIEndpoints_UnavailableWithoutProvider(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)
	mux := newTestMux(t, h)

	body, _ := json.Marshal(map[string]string{"goal": "anything"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/ai/suggestions", body))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()
	h, _, _ := newTestHandlers(t, backend.URL)

	rec := httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Version != "test" {
		t.Errorf("version = %q", got.Version)
	}
}

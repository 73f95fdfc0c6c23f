// Package ai implements the task-domain AI operations: prompt
// templates forwarded to a hosted language model, with embedded-JSON
// extraction from the free-form replies.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskhive/taskhive/provider"
	"github.com/taskhive/taskhive/task"
)

// Service runs AI operations against a provider. A nil provider
// degrades every operation to its empty result.
type Service struct {
	provider provider.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates the AI service. p may be nil when no API key is configured.
func New(p provider.Provider, logger *slog.Logger) *Service {
	return &Service{provider: p, logger: logger, now: time.Now}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

// TaskDraft is a parsed natural-language task.
type TaskDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PrioritySuggestion is one entry of a prioritization ranking.
type PrioritySuggestion struct {
	ID                string `json:"id"`
	SuggestedPriority string `json:"suggested_priority"`
	Reason            string `json:"reason"`
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
	Reason    string  `json:"reason"`
}

// VoiceCommand is an interpreted voice instruction.
type VoiceCommand struct {
	Action                string            `json:"action"`
	Target                string            `json:"target"`
	Parameters            map[string]string `json:"parameters"`
	Confidence            float64           `json:"confidence"`
	ClarificationNeeded   bool              `json:"clarification_needed"`
	ClarificationQuestion string            `json:"clarification_question,omitempty"`
}

// Suggestions generates up to five actionable task titles for a goal.
func (s *Service) Suggestions(ctx context.Context, goal string) ([]string, error) {
	if s.provider == nil || strings.TrimSpace(goal) == "" {
		return nil, nil
	}
	text, err := s.provider.Complete(ctx, suggestionSystem,
		fmt.Sprintf("Context/Goal: %s\n\nGenerate 5 actionable tasks:", goal))
	if err != nil {
		return nil, fmt.Errorf("ai: suggestions: %w", err)
	}
	items := splitLines(text)
	if len(items) > 5 {
		items = items[:5]
	}
	s.logger.Info("generated task suggestions", slog.Int("count", len(items)))
	return items, nil
}

// Enhance rewrites a task description with steps and considerations.
// On provider failure the original description is returned unchanged.
func (s *Service) Enhance(ctx context.Context, title, description string) (string, error) {
	if s.provider == nil {
		return description, nil
	}
	if description == "" {
		description = "No description provided"
	}
	text, err := s.provider.Complete(ctx, enhanceSystem,
		fmt.Sprintf("Task Title: %s\nCurrent Description: %s\n\nEnhance this task description:", title, description))
	if err != nil {
		return description, fmt.Errorf("ai: enhance: %w", err)
	}
	return text, nil
}

// ParseTask turns natural language into a task draft. Without a
// provider, or when the reply carries no JSON, the input becomes the
// title of a medium-priority draft.
func (s *Service) ParseTask(ctx context.Context, input string) (*TaskDraft, error) {
	fallback := &TaskDraft{Title: input, Priority: string(task.PriorityMedium)}
	if s.provider == nil {
		return fallback, nil
	}
	text, err := s.provider.Complete(ctx, parseTaskSystem,
		fmt.Sprintf("Current date: %s\n\nUser input: %s\n\nExtract task info:", s.now().Format(time.RFC3339), input))
	if err != nil {
		return fallback, fmt.Errorf("ai: parse task: %w", err)
	}
	var draft TaskDraft
	if !extractJSONObject(text, &draft) || draft.Title == "" {
		return fallback, nil
	}
	return &draft, nil
}

// Prioritize ranks the given tasks.
func (s *Service) Prioritize(ctx context.Context, tasks []task.Task) ([]PrioritySuggestion, error) {
	if s.provider == nil || len(tasks) == 0 {
		return nil, nil
	}
	text, err := s.provider.Complete(ctx, prioritizeSystem,
		"Tasks:\n"+taskDigest(tasks)+"\n\nSuggest priorities:")
	if err != nil {
		return nil, fmt.Errorf("ai: prioritize: %w", err)
	}
	var ranked []PrioritySuggestion
	extractJSONArray(text, &ranked)
	return ranked, nil
}

// GenerateDocument produces a document of the given type from tasks.
func (s *Service) GenerateDocument(ctx context.Context, docType string, tasks []task.Task, customPrompt string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("ai: no provider configured")
	}
	prompt := fmt.Sprintf("Document type: %s\n", docType)
	if customPrompt != "" {
		prompt += "Instructions: " + customPrompt + "\n"
	}
	prompt += "\nTasks:\n" + taskDigest(tasks) + "\n\nGenerate the document:"
	text, err := s.provider.Complete(ctx, documentSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("ai: generate document: %w", err)
	}
	return text, nil
}

// GenerateReport produces an analytical report over tasks.
func (s *Service) GenerateReport(ctx context.Context, reportType string, tasks []task.Task, dateRange string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("ai: no provider configured")
	}
	prompt := fmt.Sprintf("Report type: %s\n", reportType)
	if dateRange != "" {
		prompt += "Date range: " + dateRange + "\n"
	}
	prompt += "\nTasks:\n" + taskDigest(tasks) + "\n\nGenerate the report:"
	text, err := s.provider.Complete(ctx, reportSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("ai: generate report: %w", err)
	}
	return text, nil
}

// SemanticSearch matches a natural-language query against tasks.
func (s *Service) SemanticSearch(ctx context.Context, query string, tasks []task.Task) ([]SearchResult, error) {
	if s.provider == nil || len(tasks) == 0 {
		return nil, nil
	}
	text, err := s.provider.Complete(ctx, semanticSearchSystem,
		fmt.Sprintf("Query: %s\n\nTasks:\n%s", query, taskDigest(tasks)))
	if err != nil {
		return nil, fmt.Errorf("ai: semantic search: %w", err)
	}
	var results []SearchResult
	extractJSONArray(text, &results)
	return results, nil
}

// ParseVoiceCommand maps transcribed speech to a structured command.
func (s *Service) ParseVoiceCommand(ctx context.Context, transcript string) (*VoiceCommand, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("ai: no provider configured")
	}
	text, err := s.provider.Complete(ctx, voiceCommandSystem,
		fmt.Sprintf("Current date: %s\n\nTranscript: %s", s.now().Format("2006-01-02"), transcript))
	if err != nil {
		return nil, fmt.Errorf("ai: voice parse: %w", err)
	}
	var cmd VoiceCommand
	if !extractJSONObject(text, &cmd) {
		return &VoiceCommand{Action: "unknown", ClarificationNeeded: true}, nil
	}
	return &cmd, nil
}

// Automation is one detected automation opportunity.
type Automation struct {
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Suggestion    string   `json:"suggestion"`
	TasksAffected []string `json:"tasks_affected"`
	Confidence    string   `json:"confidence"`
}

// AutomationAnalysis is the result of scanning a task list for
// recurring patterns, duplicates, and dependencies.
type AutomationAnalysis struct {
	Automations []Automation `json:"automations"`
	Insights    []string     `json:"insights"`
}

// AnalyzeAutomations scans tasks for automation opportunities. An
// empty task list, a nil provider, or an unparseable reply all yield
// an empty analysis.
func (s *Service) AnalyzeAutomations(ctx context.Context, tasks []task.Task) (*AutomationAnalysis, error) {
	analysis := &AutomationAnalysis{Automations: []Automation{}, Insights: []string{}}
	if s.provider == nil || len(tasks) == 0 {
		return analysis, nil
	}
	text, err := s.provider.Complete(ctx, automationSystem,
		"Tasks:\n"+taskDigest(tasks)+"\n\nAnalyze for automation opportunities:")
	if err != nil {
		return nil, fmt.Errorf("ai: analyze automations: %w", err)
	}
	extractJSONObject(text, analysis)
	if analysis.Automations == nil {
		analysis.Automations = []Automation{}
	}
	if analysis.Insights == nil {
		analysis.Insights = []string{}
	}
	s.logger.Info("analyzed automations", slog.Int("found", len(analysis.Automations)))
	return analysis, nil
}

// ChatMode selects the chat persona.
type ChatMode string

const (
	ChatModeHelp  ChatMode = "help"
	ChatModeCoach ChatMode = "coach"
)

// Chat answers a free-form message, optionally grounded in the user's
// tasks for the coach mode.
func (s *Service) Chat(ctx context.Context, mode ChatMode, message string, tasks []task.Task) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("ai: no provider configured")
	}
	system := helpChatSystem
	user := message
	if mode == ChatModeCoach {
		system = coachChatSystem
		user = "My current tasks:\n" + taskDigest(tasks) + "\n\n" + message
	}
	text, err := s.provider.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("ai: chat: %w", err)
	}
	return text, nil
}

// taskDigest renders tasks as compact JSON for prompts, dropping
// fields the model has no use for.
func taskDigest(tasks []task.Task) string {
	type digest struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		Status      string `json:"status"`
		Priority    string `json:"priority"`
		DueDate     string `json:"due_date,omitempty"`
	}
	ds := make([]digest, 0, len(tasks))
	for _, t := range tasks {
		ds = append(ds, digest{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      string(t.Status),
			Priority:    string(t.Priority),
			DueDate:     t.DueDate,
		})
	}
	b, _ := json.Marshal(ds)
	return string(b)
}

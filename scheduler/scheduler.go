// Package scheduler runs the periodic reminder check: on a fixed
// interval it fetches all tasks, classifies each into a due-date
// window, and sends at most one reminder email per (task, window)
// pair for the lifetime of the process.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhive/taskhive/mail"
	"github.com/taskhive/taskhive/task"
)

// Window names a time-offset range relative to a task's due date.
type Window string

const (
	// WindowPreDue fires roughly one hour before the due date.
	WindowPreDue Window = "1h"
	// WindowDueNow fires within about five minutes of the due date.
	WindowDueNow Window = "due"
	// WindowOverdue fires roughly one hour after the due date.
	WindowOverdue Window = "overdue"
)

// Inclusive window bounds in hours until due. Deliberately loose so an
// irregular poll cadence still lands inside a window; they are ratios
// of an hour, not point triggers.
const (
	preDueLow   = 0.9
	preDueHigh  = 1.1
	dueNowLow   = -0.08
	dueNowHigh  = 0.08
	overdueLow  = -1.1
	overdueHigh = -0.9
)

// classifyWindow maps hours-until-due to at most one window.
func classifyWindow(hoursUntilDue float64) (Window, bool) {
	switch {
	case hoursUntilDue >= preDueLow && hoursUntilDue <= preDueHigh:
		return WindowPreDue, true
	case hoursUntilDue >= dueNowLow && hoursUntilDue <= dueNowHigh:
		return WindowDueNow, true
	case hoursUntilDue >= overdueLow && hoursUntilDue <= overdueHigh:
		return WindowOverdue, true
	}
	return "", false
}

// reminderKey identifies "this task already got its window's reminder".
func reminderKey(taskID string, w Window) string {
	return fmt.Sprintf("%s_%s", taskID, w)
}

// TaskSource fetches the tasks a pass examines.
type TaskSource interface {
	FetchAll(ctx context.Context, limit int) ([]task.Task, error)
}

// EmailResolver maps a task owner to a notification address.
type EmailResolver interface {
	OwnerEmail(ctx context.Context, ownerID string) (string, error)
}

// Config tunes the scheduler. Zero values take the defaults noted on
// each field.
type Config struct {
	Interval    time.Duration // tick cadence; default 5m
	FetchLimit  int           // page size per pass; default 1000
	MaxSentKeys int           // dedup-set ceiling before a full clear; default 1000
}

// Scheduler owns the reminder loop and the in-memory dedup set. The
// set lives only as long as the process: a restart may re-send
// reminders already delivered before it.
type Scheduler struct {
	tasks    TaskSource
	emails   EmailResolver
	mailer   mail.Mailer
	logger   *slog.Logger
	interval time.Duration
	limit    int
	maxKeys  int
	now      func() time.Time

	mu     sync.Mutex
	sent   map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped scheduler.
func New(tasks TaskSource, emails EmailResolver, mailer mail.Mailer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1000
	}
	if cfg.MaxSentKeys <= 0 {
		cfg.MaxSentKeys = 1000
	}
	return &Scheduler{
		tasks:    tasks,
		emails:   emails,
		mailer:   mailer,
		logger:   logger,
		interval: cfg.Interval,
		limit:    cfg.FetchLimit,
		maxKeys:  cfg.MaxSentKeys,
		now:      time.Now,
		sent:     make(map[string]struct{}),
	}
}

// Start launches the periodic check. Calling Start on a running
// scheduler replaces the job rather than duplicating it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, done)
	s.logger.Info("reminder scheduler started", slog.Duration("interval", s.interval))
}

// Stop cancels the pending tick and waits for any in-flight pass to
// finish naturally. Safe to call when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("reminder scheduler stopped")
}

// run ticks until ctx is canceled. Passes never overlap: each runs to
// completion inside this single goroutine.
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckTaskReminders(ctx)
		}
	}
}

// CheckTaskReminders performs one full pass. A store fetch failure
// aborts the pass; any per-task failure is logged and skipped so the
// batch always completes.
func (s *Scheduler) CheckTaskReminders(ctx context.Context) {
	s.logger.Debug("checking for tasks needing reminders")

	tasks, err := s.tasks.FetchAll(ctx, s.limit)
	if err != nil {
		s.logger.Error("reminder pass aborted: fetch tasks", slog.Any("err", err))
		return
	}

	now := s.now()
	sentCount := 0
	for _, t := range tasks {
		if s.processTask(ctx, t, now) {
			sentCount++
		}
	}

	s.cleanupSentKeys()
	s.logger.Info("reminder pass complete", slog.Int("sent", sentCount), slog.Int("tasks", len(tasks)))
}

// processTask evaluates one task and reports whether a reminder was sent.
func (s *Scheduler) processTask(ctx context.Context, t task.Task, now time.Time) bool {
	if t.DueDate == "" || t.Status == task.StatusCompleted {
		return false
	}

	due, err := task.ParseDueDate(t.DueDate)
	if err != nil {
		s.logger.Warn("skipping task with malformed due date",
			slog.String("task", t.ID), slog.Any("err", err))
		return false
	}

	hoursUntilDue := due.Sub(now).Hours()
	window, ok := classifyWindow(hoursUntilDue)
	if !ok {
		return false
	}

	key := reminderKey(t.ID, window)
	if s.alreadySent(key) {
		return false
	}

	email, err := s.emails.OwnerEmail(ctx, t.OwnerID)
	if err != nil || email == "" {
		if err != nil {
			s.logger.Warn("could not resolve owner email",
				slog.String("task", t.ID), slog.String("owner", t.OwnerID), slog.Any("err", err))
		}
		return false
	}

	notify := t
	if window == WindowOverdue {
		notify.Title = mail.OverduePrefix + t.Title
	}

	s.logger.Info("sending reminder",
		slog.String("task", t.ID),
		slog.String("window", string(window)),
		slog.String("title", t.Title))

	if !s.mailer.SendTaskReminder(ctx, email, notify) {
		// Key stays absent so the next pass inside the window retries.
		return false
	}

	s.markSent(key)
	return true
}

func (s *Scheduler) alreadySent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[key]
	return ok
}

func (s *Scheduler) markSent(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[key] = struct{}{}
}

// cleanupSentKeys clears the whole dedup set once it outgrows the
// ceiling. A crude guard against unbounded growth: old tasks may get a
// duplicate reminder after a clear, which is an accepted tradeoff.
func (s *Scheduler) cleanupSentKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) > s.maxKeys {
		s.logger.Info("clearing reminder dedup set", slog.Int("size", len(s.sent)))
		s.sent = make(map[string]struct{})
	}
}

// SentCount returns the current dedup-set size.
func (s *Scheduler) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

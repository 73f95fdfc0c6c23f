// Package mail sends task reminder emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/taskhive/taskhive/task"
)

// OverduePrefix marks a presentation copy of a task as overdue. It is
// applied to the email only, never to the stored task.
const OverduePrefix = "OVERDUE: "

// Mailer delivers task reminder emails. Implementations never return
// an error; delivery failure is communicated by the boolean.
type Mailer interface {
	SendTaskReminder(ctx context.Context, recipient string, t task.Task) bool
}

// NopMailer drops every reminder. Used when email is not configured.
type NopMailer struct{}

func (NopMailer) SendTaskReminder(context.Context, string, task.Task) bool { return false }

// SMTPMailer sends reminders through an SMTP relay with STARTTLS.
type SMTPMailer struct {
	host     string
	port     int
	email    string
	password string
	logger   *slog.Logger
}

// NewSMTPMailer creates a mailer. Empty credentials produce a mailer
// that logs a warning and reports failure on every send.
func NewSMTPMailer(host string, port int, email, password string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, email: email, password: password, logger: logger}
}

// SendTaskReminder renders and sends one reminder email.
func (m *SMTPMailer) SendTaskReminder(ctx context.Context, recipient string, t task.Task) bool {
	if m.email == "" || m.password == "" {
		m.logger.Warn("email credentials not configured, skipping reminder")
		return false
	}

	body, err := renderReminderBody(t)
	if err != nil {
		m.logger.Error("render reminder email", slog.Any("err", err))
		return false
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.email); err != nil {
		m.logger.Error("reminder from address", slog.Any("err", err))
		return false
	}
	if err := msg.To(recipient); err != nil {
		m.logger.Error("reminder recipient", slog.String("to", recipient), slog.Any("err", err))
		return false
	}
	msg.Subject("Task Reminder: " + t.Title)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.email),
		gomail.WithPassword(m.password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		m.logger.Error("smtp client", slog.Any("err", err))
		return false
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("send reminder email",
			slog.String("to", recipient),
			slog.String("task", t.ID),
			slog.Any("err", err))
		return false
	}

	m.logger.Info("sent reminder email",
		slog.String("to", recipient),
		slog.String("task", t.ID),
		slog.String("title", t.Title))
	return true
}

var reminderTmpl = template.Must(template.New("reminder").Parse(`<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
  <div style="background: #4f46e5; padding: 20px; border-radius: 10px; color: white;">
    <h2>{{if .Overdue}}Overdue Task{{else}}Task Reminder{{end}}</h2>
  </div>
  <div style="padding: 20px; background: #f7fafc; border-radius: 10px; margin-top: 20px;">
    <h3 style="color: #2d3748;">{{.Title}}</h3>
    <p style="color: #4a5568;">{{.Description}}</p>
    <p>
      <span style="background: {{if .Urgent}}#fef2f2{{else}}#fef3c7{{end}}; color: {{if .Urgent}}#991b1b{{else}}#92400e{{end}}; padding: 5px 15px; border-radius: 5px; font-weight: bold;">
        {{.Priority}} PRIORITY
      </span>
    </p>
    <p style="color: #718096;"><strong>Due:</strong> {{.Due}}</p>
    {{if .Overdue}}<p style="color: #dc2626; font-weight: bold;">This task is overdue.</p>{{end}}
  </div>
  <p style="margin-top: 30px; color: #a0aec0; font-size: 12px;">
    This is an automated reminder from Taskhive.
  </p>
</body>
</html>`))

type reminderData struct {
	Title       string
	Description string
	Priority    string
	Due         string
	Overdue     bool
	Urgent      bool
}

func renderReminderBody(t task.Task) (string, error) {
	data := reminderData{
		Title:       strings.TrimPrefix(t.Title, OverduePrefix),
		Description: t.Description,
		Priority:    strings.ToUpper(string(t.Priority)),
		Due:         "No due date",
		Overdue:     strings.HasPrefix(t.Title, OverduePrefix),
		Urgent:      t.Priority == task.PriorityUrgent,
	}
	if data.Description == "" {
		data.Description = "No description"
	}
	if t.DueDate != "" {
		if due, err := task.ParseDueDate(t.DueDate); err == nil {
			data.Due = due.Format("January 2, 2006 at 3:04 PM")
		}
	}

	var buf bytes.Buffer
	if err := reminderTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute reminder template: %w", err)
	}
	return buf.String(), nil
}

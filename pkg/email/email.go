package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"path/filepath"

	"lms-backend/pkg/config"
	"lms-backend/pkg/logger"
)

const (
	TemplateVerifyEmail     = "VerifyEmail.html"
	TemplateResetPassword   = "ResetPassword.html"
	TemplateCourseAssigned  = "CourseAssigned.html"
	TemplateCourseCompleted = "CourseCompleted.html"
	TemplateQuizResult      = "QuizResult.html"
	TemplateDueReminder     = "DueReminder.html"
	TemplateWebinarReminder = "WebinarReminder.html"
)

type EmailData struct {
	Name         string  `json:"name"`
	CourseTitle  string  `json:"course_title"`
	QuizTitle    string  `json:"quiz_title"`
	WebinarTitle string  `json:"webinar_title"`
	Score        float64 `json:"score"`
	Passed       bool    `json:"passed"`
	When         string  `json:"when"`
	Link         string  `json:"link"`
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	host     string
	addr     string
	from     string
	password string
	dir      string
	log      *logger.Logger
	send     sendFunc
}

func NewMailer(cfg *config.Config, baseLog *logger.Logger) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		addr:     cfg.SMTPAddr,
		from:     cfg.EmailFrom,
		password: cfg.EmailPassword,
		dir:      cfg.TemplateDir,
		log:      baseLog.With("component", "mailer"),
		send:     smtp.SendMail,
	}
}

// Send delivers an HTML message. Failures are logged and reported as false,
// never returned to the caller.
func (m *Mailer) Send(to []string, subject, html string) bool {
	if m.addr == "" {
		m.log.Warn("smtp not configured, dropping email", "subject", subject)
		return false
	}
	auth := smtp.PlainAuth("", m.from, m.password, m.host)
	headers := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";"
	message := "Subject: " + subject + "\n" + headers + "\n\n" + html
	if err := m.send(m.addr, auth, m.from, to, []byte(message)); err != nil {
		m.log.Error("send email", "subject", subject, "error", err)
		return false
	}
	return true
}

func (m *Mailer) Render(name string, data *EmailData) (string, error) {
	path := filepath.Join(m.dir, name)
	tmpl, err := template.New(name).ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Deliver renders and sends in one step.
func (m *Mailer) Deliver(to, subject, tmpl string, data *EmailData) bool {
	html, err := m.Render(tmpl, data)
	if err != nil {
		m.log.Error("render email", "template", tmpl, "error", err)
		return false
	}
	return m.Send([]string{to}, subject, html)
}

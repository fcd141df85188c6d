package kfka

import (
	"context"
	"time"

	"lms-backend/pkg/logger"
)

type EventType string

const (
	EventEnrollmentAssigned EventType = "enrollment.assigned"
	EventModuleAdded        EventType = "module.added"
	EventCourseCompleted    EventType = "course.completed"
	EventQuizGraded         EventType = "quiz.graded"
	EventDueReminder        EventType = "enrollment.due_reminder"
	EventWebinarReminder    EventType = "webinar.reminder"
)

// Event is the single message shape on the notifications topic.
// Fields not relevant to a given Type are left empty.
type Event struct {
	Type         EventType  `json:"event_type"`
	UserID       uint       `json:"user_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	CourseID     uint       `json:"course_id,omitempty"`
	CourseTitle  string     `json:"course_title,omitempty"`
	ModuleID     uint       `json:"module_id,omitempty"`
	ModuleTitle  string     `json:"module_title,omitempty"`
	QuizID       uint       `json:"quiz_id,omitempty"`
	QuizTitle    string     `json:"quiz_title,omitempty"`
	Score        float64    `json:"score,omitempty"`
	Passed       bool       `json:"passed,omitempty"`
	WebinarID    uint       `json:"webinar_id,omitempty"`
	WebinarTitle string     `json:"webinar_title,omitempty"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler consumes events, either from Kafka or directly.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// Emit publishes ev and logs a failure instead of returning it.
// Notification delivery never fails the request that triggered it.
func Emit(ctx context.Context, p Publisher, log *logger.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if err := p.Publish(ctx, ev); err != nil && log != nil {
		log.Warn("publish event failed", "event", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

// Direct hands events to a Handler in-process. Used when no broker is configured.
type Direct struct {
	Handler Handler
}

func (d Direct) Publish(ctx context.Context, ev Event) error {
	return d.Handler.Handle(ctx, ev)
}

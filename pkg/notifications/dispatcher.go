package notifications

import (
	"context"
	"fmt"
	"strings"

	"lms-backend/pkg/email"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
)

// Mailer is the part of email.Mailer the dispatcher needs.
type Mailer interface {
	Deliver(to, subject, tmpl string, data *email.EmailData) bool
}

// Dispatcher turns bus events into an in-app notification plus, when the
// event carries an address and a template exists, an email.
type Dispatcher struct {
	svc     *Service
	mail    Mailer
	baseURL string
	log     *logger.Logger
}

func NewDispatcher(svc *Service, mail Mailer, baseURL string, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{
		svc:     svc,
		mail:    mail,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     baseLog.With("component", "dispatcher"),
	}
}

type outbound struct {
	notification models.Notification
	subject      string
	template     string
	data         email.EmailData
}

const dateLayout = "Jan 2, 2006"
const timeLayout = "Jan 2, 2006 15:04 MST"

func (d *Dispatcher) build(ev kfka.Event) (*outbound, bool) {
	out := &outbound{
		notification: models.Notification{UserID: ev.UserID, Priority: models.PriorityMedium},
		data: email.EmailData{
			Name:         ev.Name,
			CourseTitle:  ev.CourseTitle,
			QuizTitle:    ev.QuizTitle,
			WebinarTitle: ev.WebinarTitle,
			Score:        ev.Score,
			Passed:       ev.Passed,
		},
	}
	n := &out.notification
	switch ev.Type {
	case kfka.EventEnrollmentAssigned:
		n.NotificationType = models.NotifyAssignment
		n.Title = "New course assigned"
		n.Message = fmt.Sprintf("You have been enrolled in %s.", ev.CourseTitle)
		n.ActionURL = fmt.Sprintf("/courses/%d", ev.CourseID)
		if ev.DueDate != nil {
			n.Priority = models.PriorityHigh
			n.Message += " Due " + ev.DueDate.Format(dateLayout) + "."
			out.data.When = ev.DueDate.Format(dateLayout)
		}
		out.subject, out.template = "New course assigned: "+ev.CourseTitle, email.TemplateCourseAssigned
	case kfka.EventModuleAdded:
		n.NotificationType = models.NotifyAnnouncement
		n.Priority = models.PriorityLow
		n.Title = "New module available"
		n.Message = fmt.Sprintf("%s was added to %s.", ev.ModuleTitle, ev.CourseTitle)
		n.ActionURL = fmt.Sprintf("/courses/%d/modules/%d", ev.CourseID, ev.ModuleID)
	case kfka.EventCourseCompleted:
		n.NotificationType = models.NotifyAchievement
		n.Title = "Course completed"
		n.Message = fmt.Sprintf("Congratulations, you completed %s.", ev.CourseTitle)
		n.ActionURL = fmt.Sprintf("/courses/%d", ev.CourseID)
		out.subject, out.template = "Course completed: "+ev.CourseTitle, email.TemplateCourseCompleted
	case kfka.EventQuizGraded:
		n.NotificationType = models.NotifyAchievement
		n.Title = "Quiz graded"
		verdict := "did not pass"
		if ev.Passed {
			verdict = "passed"
		} else {
			n.NotificationType = models.NotifyAnnouncement
		}
		n.Message = fmt.Sprintf("You scored %.1f%% on %s and %s.", ev.Score, ev.QuizTitle, verdict)
		n.ActionURL = fmt.Sprintf("/quizzes/%d", ev.QuizID)
		out.subject, out.template = "Quiz result: "+ev.QuizTitle, email.TemplateQuizResult
	case kfka.EventDueReminder:
		n.NotificationType = models.NotifyReminder
		n.Priority = models.PriorityHigh
		n.Title = "Course due soon"
		n.Message = fmt.Sprintf("%s is due soon.", ev.CourseTitle)
		if ev.DueDate != nil {
			n.Message = fmt.Sprintf("%s is due on %s.", ev.CourseTitle, ev.DueDate.Format(dateLayout))
			out.data.When = ev.DueDate.Format(dateLayout)
		}
		n.ActionURL = fmt.Sprintf("/courses/%d", ev.CourseID)
		out.subject, out.template = "Reminder: "+ev.CourseTitle+" is due soon", email.TemplateDueReminder
	case kfka.EventWebinarReminder:
		n.NotificationType = models.NotifyWebinar
		n.Priority = models.PriorityHigh
		n.Title = "Webinar starting soon"
		n.Message = fmt.Sprintf("%s starts soon.", ev.WebinarTitle)
		if ev.StartsAt != nil {
			n.Message = fmt.Sprintf("%s starts at %s.", ev.WebinarTitle, ev.StartsAt.Format(timeLayout))
			out.data.When = ev.StartsAt.Format(timeLayout)
		}
		n.ActionURL = fmt.Sprintf("/webinars/%d", ev.WebinarID)
		out.subject, out.template = "Starting soon: "+ev.WebinarTitle, email.TemplateWebinarReminder
	default:
		return nil, false
	}
	out.data.Link = d.baseURL + n.ActionURL
	return out, true
}

// Handle never asks for redelivery of an unknown event type.
func (d *Dispatcher) Handle(ctx context.Context, ev kfka.Event) error {
	out, ok := d.build(ev)
	if !ok {
		d.log.Warn("unknown event type", "event", ev.Type)
		return nil
	}
	if ev.UserID == 0 {
		return fmt.Errorf("event %s has no user", ev.Type)
	}
	if err := d.svc.Deliver(ctx, &out.notification); err != nil {
		return err
	}
	if d.mail != nil && ev.Email != "" && out.template != "" {
		d.mail.Deliver(ev.Email, out.subject, out.template, &out.data)
	}
	return nil
}

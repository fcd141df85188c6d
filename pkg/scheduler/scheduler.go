// Package scheduler runs the periodic reminder jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
)

const (
	dueWindow     = 3 * 24 * time.Hour
	webinarWindow = time.Hour
	jobTimeout    = 5 * time.Minute
)

// cronLogger adapts our logger to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.log.Debug(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append(kv, "error", err)...)
}

type Scheduler struct {
	cron   *cron.Cron
	db     *gorm.DB
	events kfka.Publisher
	log    *logger.Logger
	now    func() time.Time
}

func New(db *gorm.DB, events kfka.Publisher, baseLog *logger.Logger) *Scheduler {
	log := baseLog.With("component", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		db:     db,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start(dueSpec, webinarSpec string) error {
	if _, err := s.cron.AddFunc(dueSpec, s.job("due reminders", s.DueReminders)); err != nil {
		return fmt.Errorf("schedule due reminders %q: %w", dueSpec, err)
	}
	if _, err := s.cron.AddFunc(webinarSpec, s.job("webinar reminders", s.WebinarReminders)); err != nil {
		return fmt.Errorf("schedule webinar reminders %q: %w", webinarSpec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", "due_spec", dueSpec, "webinar_spec", webinarSpec)
	return nil
}

// Stop waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) job(name string, fn func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := fn(ctx)
		if err != nil {
			s.log.Error("job failed", "job", name, "error", err)
			return
		}
		s.log.Info("job finished", "job", name, "sent", n)
	}
}

type dueRow struct {
	UserID      uint
	Email       string
	FirstName   string
	LastName    string
	Username    string
	CourseID    uint
	CourseTitle string
	DueDate     time.Time
}

// DueReminders emits a reminder for every open enrollment due within three
// days. It runs daily, so a learner hears about a deadline up to three times.
func (s *Scheduler) DueReminders(ctx context.Context) (int, error) {
	now := s.now()
	var rows []dueRow
	err := s.db.WithContext(ctx).Table("enrollments").
		Select("enrollments.user_id, users.email, users.first_name, users.last_name, users.username, enrollments.course_id, courses.title AS course_title, enrollments.due_date").
		Joins("JOIN users ON users.id = enrollments.user_id").
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("enrollments.status NOT IN ?", []models.EnrollmentStatus{models.EnrollmentCompleted, models.EnrollmentDropped}).
		Where("enrollments.due_date IS NOT NULL AND enrollments.due_date BETWEEN ? AND ?", now, now.Add(dueWindow)).
		Where("users.is_active = ?", true).
		Order("enrollments.id").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("load due enrollments: %w", err)
	}
	for _, r := range rows {
		due := r.DueDate
		u := models.User{FirstName: r.FirstName, LastName: r.LastName, Username: r.Username}
		kfka.Emit(ctx, s.events, s.log, kfka.Event{
			Type:        kfka.EventDueReminder,
			UserID:      r.UserID,
			Email:       r.Email,
			Name:        u.FullName(),
			CourseID:    r.CourseID,
			CourseTitle: r.CourseTitle,
			DueDate:     &due,
		})
	}
	return len(rows), nil
}

type webinarRow struct {
	RegistrationID uint
	UserID         uint
	Email          string
	FirstName      string
	LastName       string
	Username       string
	WebinarID      uint
	WebinarTitle   string
	ScheduledAt    time.Time
}

// WebinarReminders notifies registrants of webinars starting within the
// hour. reminded_at is claimed with a conditional update so each
// registration is reminded once even with several instances running.
func (s *Scheduler) WebinarReminders(ctx context.Context) (int, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	var rows []webinarRow
	err := db.Table("webinar_registrations").
		Select("webinar_registrations.id AS registration_id, webinar_registrations.user_id, users.email, users.first_name, users.last_name, users.username, webinars.id AS webinar_id, webinars.title AS webinar_title, webinars.scheduled_at").
		Joins("JOIN users ON users.id = webinar_registrations.user_id").
		Joins("JOIN webinars ON webinars.id = webinar_registrations.webinar_id").
		Where("webinar_registrations.reminded_at IS NULL").
		Where("webinars.status = ?", models.WebinarScheduled).
		Where("webinars.scheduled_at BETWEEN ? AND ?", now, now.Add(webinarWindow)).
		Order("webinar_registrations.id").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("load webinar registrations: %w", err)
	}
	sent := 0
	for _, r := range rows {
		res := db.Model(&models.WebinarRegistration{}).
			Where("id = ? AND reminded_at IS NULL", r.RegistrationID).
			Update("reminded_at", now)
		if res.Error != nil {
			return sent, fmt.Errorf("claim registration %d: %w", r.RegistrationID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		starts := r.ScheduledAt
		u := models.User{FirstName: r.FirstName, LastName: r.LastName, Username: r.Username}
		kfka.Emit(ctx, s.events, s.log, kfka.Event{
			Type:         kfka.EventWebinarReminder,
			UserID:       r.UserID,
			Email:        r.Email,
			Name:         u.FullName(),
			WebinarID:    r.WebinarID,
			WebinarTitle: r.WebinarTitle,
			StartsAt:     &starts,
		})
		sent++
	}
	return sent, nil
}

// Package analytics records learning events and rolls up dashboard, user
// and course metrics.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
)

const (
	dateLayout   = "2006-01-02"
	recentLimit  = 5
	topListLimit = 5
)

type EventRequest struct {
	CourseID   *uint                  `json:"course_id"`
	ModuleID   *uint                  `json:"module_id"`
	ActionType models.LearningAction  `json:"action_type" validate:"required,oneof=view start complete pause resume download"`
	ActionData map[string]interface{} `json:"action_data"`
}

// Range bounds learning events; either end may be open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// ParseRange reads YYYY-MM-DD dates. The end date is inclusive.
func ParseRange(start, end string) (Range, error) {
	var rng Range
	if start != "" {
		t, err := time.ParseInLocation(dateLayout, start, time.UTC)
		if err != nil {
			return rng, apierr.BadRequest("Invalid start_date")
		}
		rng.From = &t
	}
	if end != "" {
		t, err := time.ParseInLocation(dateLayout, end, time.UTC)
		if err != nil {
			return rng, apierr.BadRequest("Invalid end_date")
		}
		t = t.Add(24 * time.Hour)
		rng.To = &t
	}
	if rng.From != nil && rng.To != nil && !rng.From.Before(*rng.To) {
		return rng, apierr.BadRequest("start_date must not be after end_date")
	}
	return rng, nil
}

func (r Range) apply(q *gorm.DB) *gorm.DB {
	if r.From != nil {
		q = q.Where("timestamp >= ?", *r.From)
	}
	if r.To != nil {
		q = q.Where("timestamp < ?", *r.To)
	}
	return q
}

type RecentEnrollment struct {
	ID          uint                    `json:"id"`
	UserID      uint                    `json:"user_id"`
	UserName    string                  `json:"user_name"`
	CourseID    uint                    `json:"course_id"`
	CourseTitle string                  `json:"course_title"`
	Status      models.EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time               `json:"enrolled_at"`
}

type CourseCount struct {
	CourseID    uint   `json:"course_id"`
	CourseTitle string `json:"course_title"`
	Enrollments int64  `json:"enrollments"`
}

type Dashboard struct {
	TotalUsers           int64              `json:"total_users"`
	ActiveUsers          int64              `json:"active_users"`
	TotalCourses         int64              `json:"total_courses"`
	PublishedCourses     int64              `json:"published_courses"`
	TotalEnrollments     int64              `json:"total_enrollments"`
	CompletedEnrollments int64              `json:"completed_enrollments"`
	CompletionRate       float64            `json:"completion_rate"`
	NewEnrollmentsToday  int64              `json:"new_enrollments_today"`
	CompletionsToday     int64              `json:"completions_today"`
	ActiveUsersToday     int64              `json:"active_users_today"`
	RecentEnrollments    []RecentEnrollment `json:"recent_enrollments"`
	TopCourses           []CourseCount      `json:"top_courses"`
}

type UserAnalytics struct {
	UserID            uint       `json:"user_id"`
	UserName          string     `json:"user_name"`
	TotalEnrollments  int64      `json:"total_enrollments"`
	CompletedCourses  int64      `json:"completed_courses"`
	InProgressCourses int64      `json:"in_progress_courses"`
	CompletionRate    float64    `json:"completion_rate"`
	QuizAttempts      int64      `json:"quiz_attempts"`
	AverageQuizScore  float64    `json:"average_quiz_score"`
	WebinarAttendance int64      `json:"webinar_attendance"`
	TotalPoints       int64      `json:"total_points"`
	TotalCertificates int64      `json:"total_certificates"`
	TotalBadges       int64      `json:"total_badges"`
	LearningEvents    int64      `json:"learning_events"`
	LastActivity      *time.Time `json:"last_activity"`
}

type CourseAnalytics struct {
	CourseID             uint             `json:"course_id"`
	CourseTitle          string           `json:"course_title"`
	Category             string           `json:"category"`
	TotalEnrollments     int64            `json:"total_enrollments"`
	ActiveEnrollments    int64            `json:"active_enrollments"`
	CompletedEnrollments int64            `json:"completed_enrollments"`
	DroppedEnrollments   int64            `json:"dropped_enrollments"`
	CompletionRate       float64          `json:"completion_rate"`
	AverageProgress      float64          `json:"average_progress"`
	QuizAttempts         int64            `json:"quiz_attempts"`
	AverageQuizScore     float64          `json:"average_quiz_score"`
	PassRate             float64          `json:"pass_rate"`
	LearningEvents       int64            `json:"learning_events"`
	EventsByAction       map[string]int64 `json:"events_by_action"`
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, baseLog *logger.Logger) *Service {
	return &Service{db: db, log: baseLog.With("service", "AnalyticsService"), now: time.Now}
}

func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// RecordEvent stores an event for user. A module without a course fills the
// course in; a module from another course is rejected.
func (s *Service) RecordEvent(ctx context.Context, user models.User, req EventRequest) (*models.LearningEvent, error) {
	db := s.db.WithContext(ctx)
	if req.ModuleID != nil {
		var m models.Module
		if err := db.Limit(1).Find(&m, *req.ModuleID).Error; err != nil {
			return nil, err
		}
		if m.ID == 0 {
			return nil, apierr.NotFound("Module not found")
		}
		if req.CourseID == nil {
			req.CourseID = &m.CourseID
		} else if *req.CourseID != m.CourseID {
			return nil, apierr.BadRequest("Module does not belong to course")
		}
	}
	if req.CourseID != nil {
		var n int64
		if err := db.Model(&models.Course{}).Where("id = ?", *req.CourseID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apierr.NotFound("Course not found")
		}
	}
	var data []byte
	if req.ActionData != nil {
		b, err := json.Marshal(req.ActionData)
		if err != nil {
			return nil, apierr.BadRequest("Invalid action_data")
		}
		data = b
	}
	ev := models.LearningEvent{
		UserID:     user.ID,
		CourseID:   req.CourseID,
		ModuleID:   req.ModuleID,
		ActionType: req.ActionType,
		ActionData: data,
		Timestamp:  s.now().UTC(),
	}
	if err := db.Create(&ev).Error; err != nil {
		return nil, fmt.Errorf("record learning event: %w", err)
	}
	s.log.Debug("learning event", "user_id", user.ID, "action", ev.ActionType, "course_id", ev.CourseID)
	return &ev, nil
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	out := &Dashboard{}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&out.TotalUsers, db.Model(&models.User{})},
		{&out.ActiveUsers, db.Model(&models.User{}).Where("is_active = ?", true)},
		{&out.TotalCourses, db.Model(&models.Course{})},
		{&out.PublishedCourses, db.Model(&models.Course{}).Where("status = ?", models.CoursePublished)},
		{&out.TotalEnrollments, db.Model(&models.Enrollment{})},
		{&out.CompletedEnrollments, db.Model(&models.Enrollment{}).Where("status = ?", models.EnrollmentCompleted)},
		{&out.NewEnrollmentsToday, db.Model(&models.Enrollment{}).Where("enrolled_at >= ?", today)},
		{&out.CompletionsToday, db.Model(&models.Enrollment{}).Where("completed_at >= ?", today)},
		{&out.ActiveUsersToday, db.Model(&models.LearningEvent{}).Where("timestamp >= ?", today).Distinct("user_id")},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	out.CompletionRate = rate(out.CompletedEnrollments, out.TotalEnrollments)

	var recent []models.Enrollment
	if err := db.Order("enrolled_at desc, id desc").Limit(recentLimit).Find(&recent).Error; err != nil {
		return nil, err
	}
	var top []struct {
		CourseID uint
		N        int64
	}
	if err := db.Model(&models.Enrollment{}).Select("course_id, COUNT(*) AS n").Group("course_id").
		Order("n desc, course_id").Limit(topListLimit).Scan(&top).Error; err != nil {
		return nil, err
	}

	userIDs := make([]uint, 0, len(recent))
	courseIDs := make([]uint, 0, len(recent)+len(top))
	for _, e := range recent {
		userIDs = append(userIDs, e.UserID)
		courseIDs = append(courseIDs, e.CourseID)
	}
	for _, t := range top {
		courseIDs = append(courseIDs, t.CourseID)
	}
	names, err := s.userNames(db, userIDs)
	if err != nil {
		return nil, err
	}
	titles, err := s.courseTitles(db, courseIDs)
	if err != nil {
		return nil, err
	}
	out.RecentEnrollments = make([]RecentEnrollment, 0, len(recent))
	for _, e := range recent {
		out.RecentEnrollments = append(out.RecentEnrollments, RecentEnrollment{
			ID:          e.ID,
			UserID:      e.UserID,
			UserName:    names[e.UserID],
			CourseID:    e.CourseID,
			CourseTitle: titles[e.CourseID],
			Status:      e.Status,
			EnrolledAt:  e.EnrolledAt,
		})
	}
	out.TopCourses = make([]CourseCount, 0, len(top))
	for _, t := range top {
		out.TopCourses = append(out.TopCourses, CourseCount{CourseID: t.CourseID, CourseTitle: titles[t.CourseID], Enrollments: t.N})
	}
	return out, nil
}

func (s *Service) userNames(db *gorm.DB, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.FullName()
	}
	return out, nil
}

func (s *Service) courseTitles(db *gorm.DB, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var courses []models.Course
	if err := db.Select("id", "title").Where("id IN ?", ids).Find(&courses).Error; err != nil {
		return nil, err
	}
	for _, c := range courses {
		out[c.ID] = c.Title
	}
	return out, nil
}

// UserAnalytics sums a user's learning record. rng narrows the event
// counters only.
func (s *Service) UserAnalytics(ctx context.Context, userID uint, rng Range) (*UserAnalytics, error) {
	db := s.db.WithContext(ctx)
	var u models.User
	if err := db.Limit(1).Find(&u, userID).Error; err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, apierr.NotFound("User not found")
	}
	out := &UserAnalytics{UserID: u.ID, UserName: u.FullName()}
	enr := func() *gorm.DB { return db.Model(&models.Enrollment{}).Where("user_id = ?", userID) }
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&out.TotalEnrollments, enr()},
		{&out.CompletedCourses, enr().Where("status = ?", models.EnrollmentCompleted)},
		{&out.InProgressCourses, enr().Where("status = ?", models.EnrollmentInProgress)},
		{&out.QuizAttempts, db.Model(&models.QuizAttempt{}).Where("user_id = ? AND completed_at IS NOT NULL", userID)},
		{&out.WebinarAttendance, db.Model(&models.WebinarRegistration{}).Where("user_id = ? AND attended = ?", userID, true)},
		{&out.TotalCertificates, db.Model(&models.Certificate{}).Where("user_id = ?", userID)},
		{&out.TotalBadges, db.Model(&models.UserBadge{}).Where("user_id = ?", userID)},
		{&out.LearningEvents, rng.apply(db.Model(&models.LearningEvent{}).Where("user_id = ?", userID))},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	out.CompletionRate = rate(out.CompletedCourses, out.TotalEnrollments)
	if err := db.Model(&models.QuizAttempt{}).Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Select("COALESCE(AVG(score), 0)").Scan(&out.AverageQuizScore).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserPoints{}).Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").Scan(&out.TotalPoints).Error; err != nil {
		return nil, err
	}
	var last models.LearningEvent
	if err := rng.apply(db.Where("user_id = ?", userID)).Order("timestamp desc").Limit(1).Find(&last).Error; err != nil {
		return nil, err
	}
	if last.ID != 0 {
		out.LastActivity = &last.Timestamp
	}
	return out, nil
}

// CourseAnalytics is open to staff and the course's own creator.
func (s *Service) CourseAnalytics(ctx context.Context, actor models.User, courseID uint, rng Range) (*CourseAnalytics, error) {
	db := s.db.WithContext(ctx)
	var c models.Course
	if err := db.Limit(1).Find(&c, courseID).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, apierr.NotFound("Course not found")
	}
	if !actor.IsStaff() && !c.ManagedBy(actor) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	out := &CourseAnalytics{CourseID: c.ID, CourseTitle: c.Title, Category: "N/A", EventsByAction: map[string]int64{}}
	if c.CategoryID != nil {
		var cat models.Category
		if err := db.Limit(1).Find(&cat, *c.CategoryID).Error; err != nil {
			return nil, err
		}
		if cat.ID != 0 {
			out.Category = cat.Name
		}
	}

	enr := func() *gorm.DB { return db.Model(&models.Enrollment{}).Where("course_id = ?", courseID) }
	attempts := func() *gorm.DB {
		return db.Model(&models.QuizAttempt{}).
			Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
			Joins("JOIN modules ON modules.id = quizzes.module_id").
			Where("modules.course_id = ? AND quiz_attempts.completed_at IS NOT NULL", courseID)
	}
	events := func() *gorm.DB { return rng.apply(db.Model(&models.LearningEvent{}).Where("course_id = ?", courseID)) }

	var passed int64
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&out.TotalEnrollments, enr()},
		{&out.ActiveEnrollments, enr().Where("status IN ?", []models.EnrollmentStatus{models.EnrollmentEnrolled, models.EnrollmentInProgress})},
		{&out.CompletedEnrollments, enr().Where("status = ?", models.EnrollmentCompleted)},
		{&out.DroppedEnrollments, enr().Where("status = ?", models.EnrollmentDropped)},
		{&out.QuizAttempts, attempts()},
		{&passed, attempts().Where("quiz_attempts.is_passed = ?", true)},
		{&out.LearningEvents, events()},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	out.CompletionRate = rate(out.CompletedEnrollments, out.TotalEnrollments)
	out.PassRate = rate(passed, out.QuizAttempts)
	if err := enr().Select("COALESCE(AVG(progress_percentage), 0)").Scan(&out.AverageProgress).Error; err != nil {
		return nil, err
	}
	if err := attempts().Select("COALESCE(AVG(quiz_attempts.score), 0)").Scan(&out.AverageQuizScore).Error; err != nil {
		return nil, err
	}
	var byAction []struct {
		ActionType string
		N          int64
	}
	if err := events().Select("action_type, COUNT(*) AS n").Group("action_type").Scan(&byAction).Error; err != nil {
		return nil, err
	}
	for _, a := range byAction {
		out.EventsByAction[a.ActionType] = a.N
	}
	return out, nil
}

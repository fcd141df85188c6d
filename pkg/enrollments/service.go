package enrollments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/progress"
)

var errAlreadyEnrolled = apierr.Conflict("User is already enrolled in this course")

type EnrollRequest struct {
	UserID   uint       `json:"user_id" validate:"required"`
	CourseID uint       `json:"course_id" validate:"required"`
	DueDate  *time.Time `json:"due_date"`
}

type BulkRequest struct {
	UserIDs  []uint     `json:"user_ids" validate:"required,min=1"`
	CourseID uint       `json:"course_id" validate:"required"`
	DueDate  *time.Time `json:"due_date"`
}

type BulkFailure struct {
	UserID uint   `json:"user_id"`
	Error  string `json:"error"`
}

// BulkResult tallies a bulk enrollment. The batch itself never fails on
// a single user.
type BulkResult struct {
	Successful int           `json:"successful_enrollments"`
	Failed     int           `json:"failed_enrollments"`
	Failures   []BulkFailure `json:"failures"`
}

type UpdateRequest struct {
	DueDate *time.Time `json:"due_date"`
}

type ListFilter struct {
	UserID     *uint
	CourseID   *uint
	Status     string
	AssignedBy *uint
}

type EnrollmentView struct {
	models.Enrollment
	UserName    string `json:"user_name"`
	CourseTitle string `json:"course_title"`
}

type Service struct {
	db     *gorm.DB
	events kfka.Publisher
	audit  audit.Recorder
	log    *logger.Logger
}

func NewService(db *gorm.DB, events kfka.Publisher, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, events: events, audit: rec, log: baseLog.With("service", "EnrollmentService")}
}

// Enroll creates the enrollment or reactivates a dropped one. assignedBy is
// nil for self-enrollment.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest, assignedBy *uint) (*EnrollmentView, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Limit(1).Find(&user, req.UserID).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, apierr.NotFound("User not found")
	}
	var course models.Course
	if err := db.Limit(1).Find(&course, req.CourseID).Error; err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, apierr.NotFound("Course not found")
	}

	var enr models.Enrollment
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND course_id = ?", user.ID, course.ID).Limit(1).Find(&enr).Error; err != nil {
			return err
		}
		now := time.Now()
		if enr.ID != 0 {
			if enr.Status != models.EnrollmentDropped {
				return errAlreadyEnrolled
			}
			enr.Status, enr.EnrolledAt, enr.AssignedBy, enr.DueDate = models.EnrollmentEnrolled, now, assignedBy, req.DueDate
			err := tx.Model(&enr).Updates(map[string]interface{}{
				"status":      enr.Status,
				"enrolled_at": now,
				"assigned_by": assignedBy,
				"due_date":    req.DueDate,
			}).Error
			if err != nil {
				return err
			}
			// kept progress decides the status again
			return progress.Reconcile(tx, &enr, now)
		}
		enr = models.Enrollment{
			UserID:     user.ID,
			CourseID:   course.ID,
			EnrolledAt: now,
			Status:     models.EnrollmentEnrolled,
			AssignedBy: assignedBy,
			DueDate:    req.DueDate,
		}
		return tx.Create(&enr).Error
	})
	if err != nil {
		if apierr.IsDuplicate(err) {
			return nil, errAlreadyEnrolled
		}
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, fmt.Errorf("enroll user: %w", err)
	}

	kfka.Emit(ctx, s.events, s.log, kfka.Event{
		Type:        kfka.EventEnrollmentAssigned,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.FullName(),
		CourseID:    course.ID,
		CourseTitle: course.Title,
		DueDate:     req.DueDate,
	})
	s.audit.Record(ctx, audit.Entry{UserID: assignedBy, Action: models.ActionCreate, EntityType: "Enrollment", EntityID: &enr.ID,
		Details: map[string]interface{}{"user_id": user.ID, "course_id": course.ID}})
	return &EnrollmentView{Enrollment: enr, UserName: user.FullName(), CourseTitle: course.Title}, nil
}

// EnrollSelf is enroll-me: learners may only join published courses.
func (s *Service) EnrollSelf(ctx context.Context, user models.User, courseID uint) (*EnrollmentView, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).Limit(1).Find(&course, courseID).Error; err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, apierr.NotFound("Course not found")
	}
	if course.Status != models.CoursePublished && !user.IsStaff() {
		return nil, apierr.BadRequest("Course is not published")
	}
	return s.Enroll(ctx, EnrollRequest{UserID: user.ID, CourseID: courseID}, nil)
}

func (s *Service) BulkEnroll(ctx context.Context, req BulkRequest, assignedBy *uint) BulkResult {
	res := BulkResult{Failures: []BulkFailure{}}
	for _, uid := range req.UserIDs {
		_, err := s.Enroll(ctx, EnrollRequest{UserID: uid, CourseID: req.CourseID, DueDate: req.DueDate}, assignedBy)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BulkFailure{UserID: uid, Error: failureText(err)})
			continue
		}
		res.Successful++
	}
	return res
}

func failureText(err error) string {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return err.Error()
}

func (s *Service) find(ctx context.Context, id uint) (*models.Enrollment, error) {
	var enr models.Enrollment
	if err := s.db.WithContext(ctx).Limit(1).Find(&enr, id).Error; err != nil {
		return nil, err
	}
	if enr.ID == 0 {
		return nil, apierr.NotFound("Enrollment not found")
	}
	return &enr, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*EnrollmentView, error) {
	enr, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, *enr)
}

func (s *Service) view(ctx context.Context, enr models.Enrollment) (*EnrollmentView, error) {
	out := &EnrollmentView{Enrollment: enr}
	var user models.User
	if err := s.db.WithContext(ctx).Limit(1).Find(&user, enr.UserID).Error; err != nil {
		return nil, err
	}
	out.UserName = user.FullName()
	var course models.Course
	if err := s.db.WithContext(ctx).Limit(1).Find(&course, enr.CourseID).Error; err != nil {
		return nil, err
	}
	out.CourseTitle = course.Title
	return out, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) (pagination.Page[EnrollmentView], error) {
	q := s.db.WithContext(ctx).Model(&models.Enrollment{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.CourseID != nil {
		q = q.Where("course_id = ?", *f.CourseID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssignedBy != nil {
		q = q.Where("assigned_by = ?", *f.AssignedBy)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[EnrollmentView]{}, err
	}
	var rows []models.Enrollment
	if err := q.Order("enrolled_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[EnrollmentView]{}, err
	}
	items := make([]EnrollmentView, 0, len(rows))
	for _, enr := range rows {
		v, err := s.view(ctx, enr)
		if err != nil {
			return pagination.Page[EnrollmentView]{}, err
		}
		items = append(items, *v)
	}
	return pagination.New(items, total, p), nil
}

func (s *Service) Update(ctx context.Context, actor models.User, id uint, req UpdateRequest) (*EnrollmentView, error) {
	enr, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(enr).Update("due_date", req.DueDate).Error; err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}
	enr.DueDate = req.DueDate
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "Enrollment", EntityID: &enr.ID})
	return s.view(ctx, *enr)
}

// Drop is the only way an enrollment leaves the derived status chain.
// Progress rows are kept so a later re-enrollment resumes from them.
func (s *Service) Drop(ctx context.Context, actor models.User, id uint) (*EnrollmentView, error) {
	enr, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if enr.Status == models.EnrollmentDropped {
		return nil, apierr.BadRequest("Enrollment has already been dropped")
	}
	if enr.Status == models.EnrollmentCompleted {
		return nil, apierr.BadRequest("Cannot drop a completed enrollment")
	}
	if err := s.db.WithContext(ctx).Model(enr).Update("status", models.EnrollmentDropped).Error; err != nil {
		return nil, fmt.Errorf("drop enrollment: %w", err)
	}
	enr.Status = models.EnrollmentDropped
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "Enrollment", EntityID: &enr.ID,
		Details: map[string]interface{}{"status": models.EnrollmentDropped}})
	return s.view(ctx, *enr)
}

package progress

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errNotEnrolled = apierr.NotFound("User not enrolled in this course")

type UpdateRequest struct {
	CourseID           uint                  `json:"course_id" validate:"required"`
	ModuleID           uint                  `json:"module_id" validate:"required"`
	ContentType        models.ContentType    `json:"content_type" validate:"required,oneof=video document quiz webinar interactive"`
	Status             models.ProgressStatus `json:"status" validate:"required,oneof=not_started in_progress completed"`
	ProgressPercentage float64               `json:"progress_percentage" validate:"gte=0,lte=100"`
	TimeSpent          int                   `json:"time_spent" validate:"gte=0"`
}

// UserCourseProgress is the rollup view of one enrollment.
type UserCourseProgress struct {
	EnrollmentID       uint                    `json:"enrollment_id"`
	UserID             uint                    `json:"user_id"`
	CourseID           uint                    `json:"course_id"`
	CourseTitle        string                  `json:"course_title"`
	EnrollmentStatus   models.EnrollmentStatus `json:"enrollment_status"`
	ProgressPercentage float64                 `json:"progress_percentage"`
	StartedAt          *time.Time              `json:"started_at"`
	CompletedAt        *time.Time              `json:"completed_at"`
	DueDate            *time.Time              `json:"due_date"`
	TotalModules       int64                   `json:"total_modules"`
	CompletedModules   int64                   `json:"completed_modules"`
	TotalTimeSpent     int64                   `json:"total_time_spent"`
	LastAccessed       time.Time               `json:"last_accessed"`
}

type Service struct {
	db     *gorm.DB
	events kfka.Publisher
	log    *logger.Logger
}

func NewService(db *gorm.DB, events kfka.Publisher, baseLog *logger.Logger) *Service {
	return &Service{db: db, events: events, log: baseLog.With("service", "ProgressService")}
}

// RecordContentProgress upserts one content row and recomputes the module
// and enrollment above it. All three levels change in one transaction, and
// on Postgres the enrollment row is locked so concurrent updates serialize.
func (s *Service) RecordContentProgress(ctx context.Context, userID uint, req UpdateRequest) (*models.ContentProgress, error) {
	var (
		out       models.ContentProgress
		enr       models.Enrollment
		completed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("user_id = ? AND course_id = ?", userID, req.CourseID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Limit(1).Find(&enr).Error; err != nil {
			return err
		}
		if enr.ID == 0 {
			return errNotEnrolled
		}
		if enr.Status == models.EnrollmentDropped {
			return apierr.BadRequest("Enrollment has been dropped")
		}
		var n int64
		if err := tx.Model(&models.Module{}).Where("id = ? AND course_id = ?", req.ModuleID, req.CourseID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("Module not found")
		}

		now := time.Now()
		mp, err := upsertModuleProgress(tx, enr.ID, req.ModuleID, now)
		if err != nil {
			return err
		}
		if err := upsertContentProgress(tx, mp.ID, req, now); err != nil {
			return err
		}
		if err := tx.Where("module_progress_id = ? AND content_type = ?", mp.ID, req.ContentType).First(&out).Error; err != nil {
			return err
		}
		if err := recomputeModule(tx, mp, now); err != nil {
			return err
		}
		was := enr.Status
		if err := recomputeEnrollment(tx, &enr, now); err != nil {
			return err
		}
		completed = was != models.EnrollmentCompleted && enr.Status == models.EnrollmentCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.emitCompleted(ctx, enr)
	}
	return &out, nil
}

func upsertModuleProgress(tx *gorm.DB, enrollmentID, moduleID uint, now time.Time) (*models.ModuleProgress, error) {
	mp := models.ModuleProgress{
		EnrollmentID: enrollmentID,
		ModuleID:     moduleID,
		Status:       models.InProgress,
		StartedAt:    &now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "module_id"}},
		DoNothing: true,
	}).Create(&mp).Error
	if err != nil {
		return nil, fmt.Errorf("upsert module progress: %w", err)
	}
	var row models.ModuleProgress
	if err := tx.Where("enrollment_id = ? AND module_id = ?", enrollmentID, moduleID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// upsertContentProgress overwrites status and percentage, and adds the
// time spent to the running total.
func upsertContentProgress(tx *gorm.DB, moduleProgressID uint, req UpdateRequest, now time.Time) error {
	row := models.ContentProgress{
		ModuleProgressID:   moduleProgressID,
		ContentType:        req.ContentType,
		Status:             req.Status,
		ProgressPercentage: req.ProgressPercentage,
		TimeSpent:          req.TimeSpent,
		LastAccessed:       now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "module_progress_id"}, {Name: "content_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":              req.Status,
			"progress_percentage": req.ProgressPercentage,
			"time_spent":          gorm.Expr("content_progress.time_spent + ?", req.TimeSpent),
			"last_accessed":       now,
			"updated_at":          now,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert content progress: %w", err)
	}
	return nil
}

func recomputeModule(tx *gorm.DB, mp *models.ModuleProgress, now time.Time) error {
	var rows []models.ContentProgress
	if err := tx.Select("status", "time_spent").Where("module_progress_id = ?", mp.ID).Find(&rows).Error; err != nil {
		return err
	}
	statuses := make([]models.ProgressStatus, 0, len(rows))
	spent := 0
	for _, r := range rows {
		statuses = append(statuses, r.Status)
		spent += r.TimeSpent
	}
	status := ModuleStatus(statuses)
	updates := map[string]interface{}{"status": status, "time_spent": spent}
	switch {
	case status == models.Completed && mp.CompletedAt == nil:
		updates["completed_at"] = now
	case status != models.Completed:
		updates["completed_at"] = nil
	}
	return tx.Model(mp).Updates(updates).Error
}

func recomputeEnrollment(tx *gorm.DB, enr *models.Enrollment, now time.Time) error {
	total, completed, err := moduleCounts(tx, enr.ID, enr.CourseID)
	if err != nil {
		return err
	}
	pct, status := EnrollmentRollup(completed, total)
	updates := map[string]interface{}{"progress_percentage": pct, "status": status}
	if enr.StartedAt == nil {
		updates["started_at"] = now
	}
	switch {
	case status == models.EnrollmentCompleted && enr.CompletedAt == nil:
		updates["completed_at"] = now
	case status != models.EnrollmentCompleted:
		updates["completed_at"] = nil
	}
	if err := tx.Model(enr).Updates(updates).Error; err != nil {
		return err
	}
	enr.ProgressPercentage, enr.Status = pct, status
	return nil
}

// Reconcile re-derives an enrollment's percentage and status from the
// module progress it already has. A course without modules is left alone.
func Reconcile(tx *gorm.DB, enr *models.Enrollment, now time.Time) error {
	total, completed, err := moduleCounts(tx, enr.ID, enr.CourseID)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	pct, status := EnrollmentRollup(completed, total)
	updates := map[string]interface{}{"progress_percentage": pct, "status": status}
	switch {
	case status == models.EnrollmentCompleted && enr.CompletedAt == nil:
		updates["completed_at"] = now
	case status != models.EnrollmentCompleted:
		updates["completed_at"] = nil
	}
	if err := tx.Model(enr).Updates(updates).Error; err != nil {
		return err
	}
	enr.ProgressPercentage, enr.Status = pct, status
	return nil
}

// moduleCounts counts the course's modules and the completed progress rows
// that still point at one of them.
func moduleCounts(db *gorm.DB, enrollmentID, courseID uint) (total, completed int64, err error) {
	if err = db.Model(&models.Module{}).Where("course_id = ?", courseID).Count(&total).Error; err != nil {
		return
	}
	err = db.Model(&models.ModuleProgress{}).
		Joins("JOIN modules ON modules.id = module_progress.module_id").
		Where("module_progress.enrollment_id = ? AND module_progress.status = ? AND modules.course_id = ?",
			enrollmentID, models.Completed, courseID).
		Count(&completed).Error
	return
}

func (s *Service) emitCompleted(ctx context.Context, enr models.Enrollment) {
	var user models.User
	var course models.Course
	if err := s.db.WithContext(ctx).First(&user, enr.UserID).Error; err != nil {
		s.log.Warn("load user for completion event", "user_id", enr.UserID, "error", err)
		return
	}
	if err := s.db.WithContext(ctx).First(&course, enr.CourseID).Error; err != nil {
		s.log.Warn("load course for completion event", "course_id", enr.CourseID, "error", err)
		return
	}
	kfka.Emit(ctx, s.events, s.log, kfka.Event{
		Type:        kfka.EventCourseCompleted,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.FullName(),
		CourseID:    course.ID,
		CourseTitle: course.Title,
	})
}

// CourseProgress is recomputed on every read.
func (s *Service) CourseProgress(ctx context.Context, userID, courseID uint) (*UserCourseProgress, error) {
	db := s.db.WithContext(ctx)
	var enr models.Enrollment
	if err := db.Where("user_id = ? AND course_id = ?", userID, courseID).Limit(1).Find(&enr).Error; err != nil {
		return nil, err
	}
	if enr.ID == 0 {
		return nil, errNotEnrolled
	}
	var course models.Course
	if err := db.Limit(1).Find(&course, courseID).Error; err != nil {
		return nil, err
	}
	if course.ID == 0 {
		return nil, apierr.NotFound("Course not found")
	}
	return summarize(db, enr, course)
}

// ListUserProgress pages through a user's enrollments with a rollup for each.
func (s *Service) ListUserProgress(ctx context.Context, userID uint, p pagination.Params) (pagination.Page[UserCourseProgress], error) {
	db := s.db.WithContext(ctx)
	var empty pagination.Page[UserCourseProgress]
	var n int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return empty, err
	}
	if n == 0 {
		return empty, apierr.NotFound("User not found")
	}
	var total int64
	base := db.Model(&models.Enrollment{}).Where("user_id = ?", userID)
	if err := base.Count(&total).Error; err != nil {
		return empty, err
	}
	var enrollments []models.Enrollment
	if err := base.Order("enrolled_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&enrollments).Error; err != nil {
		return empty, err
	}
	ids := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	var courses []models.Course
	if len(ids) > 0 {
		if err := db.Where("id IN ?", ids).Find(&courses).Error; err != nil {
			return empty, err
		}
	}
	byID := make(map[uint]models.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	items := make([]UserCourseProgress, 0, len(enrollments))
	for _, e := range enrollments {
		course, ok := byID[e.CourseID]
		if !ok {
			continue
		}
		view, err := summarize(db, e, course)
		if err != nil {
			return empty, err
		}
		items = append(items, *view)
	}
	return pagination.New(items, total, p), nil
}

func summarize(db *gorm.DB, enr models.Enrollment, course models.Course) (*UserCourseProgress, error) {
	total, completed, err := moduleCounts(db, enr.ID, course.ID)
	if err != nil {
		return nil, err
	}
	pct, _ := EnrollmentRollup(completed, total)

	var agg struct{ Spent int64 }
	err = db.Model(&models.ContentProgress{}).
		Select("COALESCE(SUM(content_progress.time_spent), 0) AS spent").
		Joins("JOIN module_progress ON module_progress.id = content_progress.module_progress_id").
		Where("module_progress.enrollment_id = ?", enr.ID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	var last models.ContentProgress
	err = db.Select("content_progress.last_accessed").
		Joins("JOIN module_progress ON module_progress.id = content_progress.module_progress_id").
		Where("module_progress.enrollment_id = ?", enr.ID).
		Order("content_progress.last_accessed desc").
		Limit(1).Find(&last).Error
	if err != nil {
		return nil, err
	}
	lastAccessed := enr.UpdatedAt
	if last.LastAccessed.After(lastAccessed) {
		lastAccessed = last.LastAccessed
	}
	return &UserCourseProgress{
		EnrollmentID:       enr.ID,
		UserID:             enr.UserID,
		CourseID:           course.ID,
		CourseTitle:        course.Title,
		EnrollmentStatus:   enr.Status,
		ProgressPercentage: pct,
		StartedAt:          enr.StartedAt,
		CompletedAt:        enr.CompletedAt,
		DueDate:            enr.DueDate,
		TotalModules:       total,
		CompletedModules:   completed,
		TotalTimeSpent:     agg.Spent,
		LastAccessed:       lastAccessed,
	}, nil
}

// ModuleContentProgress lists the caller's content rows under one module.
// No rows yet is an empty list, not an error.
func (s *Service) ModuleContentProgress(ctx context.Context, userID, moduleID uint) ([]models.ContentProgress, error) {
	db := s.db.WithContext(ctx)
	var module models.Module
	if err := db.Limit(1).Find(&module, moduleID).Error; err != nil {
		return nil, err
	}
	if module.ID == 0 {
		return nil, apierr.NotFound("Module not found")
	}
	var enr models.Enrollment
	if err := db.Where("user_id = ? AND course_id = ?", userID, module.CourseID).Limit(1).Find(&enr).Error; err != nil {
		return nil, err
	}
	if enr.ID == 0 {
		return nil, errNotEnrolled
	}
	rows := make([]models.ContentProgress, 0)
	err := db.Joins("JOIN module_progress ON module_progress.id = content_progress.module_progress_id").
		Where("module_progress.enrollment_id = ? AND module_progress.module_id = ?", enr.ID, moduleID).
		Order("content_progress.id").
		Find(&rows).Error
	return rows, err
}

package modules

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/search"
)

type ModuleRequest struct {
	Title             string                 `json:"title" validate:"required,max=200"`
	Description       string                 `json:"description"`
	ContentType       models.ContentType     `json:"content_type" validate:"required,oneof=video document quiz webinar interactive"`
	ContentURL        string                 `json:"content_url" validate:"omitempty,max=500"`
	ContentData       map[string]interface{} `json:"content_data"`
	OrderIndex        *int                   `json:"order_index" validate:"omitempty,gte=0"`
	IsMandatory       *bool                  `json:"is_mandatory"`
	EstimatedDuration int                    `json:"estimated_duration" validate:"gte=0"`
}

type ModuleUpdate struct {
	Title             *string                `json:"title" validate:"omitempty,max=200"`
	Description       *string                `json:"description"`
	ContentType       *models.ContentType    `json:"content_type" validate:"omitempty,oneof=video document quiz webinar interactive"`
	ContentURL        *string                `json:"content_url" validate:"omitempty,max=500"`
	ContentData       map[string]interface{} `json:"content_data"`
	OrderIndex        *int                   `json:"order_index" validate:"omitempty,gte=0"`
	IsMandatory       *bool                  `json:"is_mandatory"`
	EstimatedDuration *int                   `json:"estimated_duration" validate:"omitempty,gte=0"`
}

type ReorderRequest struct {
	ModuleIDs []uint `json:"module_ids" validate:"required,min=1"`
}

type Service struct {
	db      *gorm.DB
	indexer search.Indexer
	events  kfka.Publisher
	audit   audit.Recorder
	log     *logger.Logger
}

func NewService(db *gorm.DB, indexer search.Indexer, events kfka.Publisher, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, indexer: indexer, events: events, audit: rec, log: baseLog.With("service", "ModuleService")}
}

func (s *Service) course(ctx context.Context, id uint) (*models.Course, error) {
	var c models.Course
	if err := s.db.WithContext(ctx).Limit(1).Find(&c, id).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, apierr.NotFound("Course not found")
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Module, error) {
	var m models.Module
	if err := s.db.WithContext(ctx).Limit(1).Find(&m, id).Error; err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, apierr.NotFound("Module not found")
	}
	return &m, nil
}

// managed loads the module and checks the caller may edit its course.
func (s *Service) managed(ctx context.Context, user models.User, id uint) (*models.Module, *models.Course, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.course(ctx, m.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if !c.ManagedBy(user) {
		return nil, nil, apierr.Forbidden("Not enough permissions")
	}
	return m, c, nil
}

func (s *Service) List(ctx context.Context, courseID uint, p pagination.Params) (pagination.Page[models.Module], error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return pagination.Page[models.Module]{}, err
	}
	q := s.db.WithContext(ctx).Model(&models.Module{}).Where("course_id = ?", courseID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.Module]{}, err
	}
	var rows []models.Module
	if err := q.Order("order_index, id").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.Module]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func contentJSON(v map[string]interface{}) models.JSON {
	if v == nil {
		return models.JSON("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return models.JSON("{}")
	}
	return models.JSON(b)
}

// Create appends the module after the last one unless order_index is given.
// Learners enrolled in a published course hear about the new module.
func (s *Service) Create(ctx context.Context, user models.User, courseID uint, req ModuleRequest) (*models.Module, error) {
	c, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	m := models.Module{
		CourseID:          courseID,
		Title:             req.Title,
		Description:       req.Description,
		ContentType:       req.ContentType,
		ContentURL:        req.ContentURL,
		ContentData:       contentJSON(req.ContentData),
		IsMandatory:       true,
		EstimatedDuration: req.EstimatedDuration,
	}
	if req.IsMandatory != nil {
		m.IsMandatory = *req.IsMandatory
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.OrderIndex != nil {
			m.OrderIndex = *req.OrderIndex
		} else {
			var max int
			if err := tx.Model(&models.Module{}).Where("course_id = ?", courseID).
				Select("COALESCE(MAX(order_index), 0)").Scan(&max).Error; err != nil {
				return err
			}
			m.OrderIndex = max + 1
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create module: %w", err)
	}
	s.reindex(ctx, m)
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionCreate, EntityType: "Module", EntityID: &m.ID,
		Details: map[string]interface{}{"course_id": courseID, "title": m.Title}})
	if c.Status == models.CoursePublished {
		s.announce(ctx, *c, m)
	}
	return &m, nil
}

func (s *Service) announce(ctx context.Context, c models.Course, m models.Module) {
	var learners []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.user_id = users.id").
		Where("enrollments.course_id = ? AND enrollments.status <> ?", c.ID, models.EnrollmentDropped).
		Find(&learners).Error
	if err != nil {
		s.log.Warn("load learners for module announcement", "course_id", c.ID, "error", err)
		return
	}
	for _, u := range learners {
		kfka.Emit(ctx, s.events, s.log, kfka.Event{
			Type:        kfka.EventModuleAdded,
			UserID:      u.ID,
			Email:       u.Email,
			Name:        u.FullName(),
			CourseID:    c.ID,
			CourseTitle: c.Title,
			ModuleID:    m.ID,
			ModuleTitle: m.Title,
		})
	}
}

func (s *Service) Update(ctx context.Context, user models.User, id uint, req ModuleUpdate) (*models.Module, error) {
	m, _, err := s.managed(ctx, user, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.ContentType != nil {
		updates["content_type"] = *req.ContentType
	}
	if req.ContentURL != nil {
		updates["content_url"] = *req.ContentURL
	}
	if req.ContentData != nil {
		updates["content_data"] = contentJSON(req.ContentData)
	}
	if req.OrderIndex != nil {
		updates["order_index"] = *req.OrderIndex
	}
	if req.IsMandatory != nil {
		updates["is_mandatory"] = *req.IsMandatory
	}
	if req.EstimatedDuration != nil {
		updates["estimated_duration"] = *req.EstimatedDuration
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(m).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update module: %w", err)
		}
	}
	m, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, *m)
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionUpdate, EntityType: "Module", EntityID: &m.ID})
	return m, nil
}

// Delete refuses while learners have quiz attempts under the module.
func (s *Service) Delete(ctx context.Context, user models.User, id uint) error {
	m, _, err := s.managed(ctx, user, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.QuizAttempt{}).
			Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
			Where("quizzes.module_id = ?", id).Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Cannot delete module with quiz attempts")
		}
		return DeleteTree(tx, []uint{id})
	})
	if err != nil {
		return err
	}
	if err := s.indexer.DeleteModule(ctx, id); err != nil {
		s.log.Warn("remove module from index", "module_id", id, "error", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionDelete, EntityType: "Module", EntityID: &id,
		Details: map[string]interface{}{"course_id": m.CourseID, "title": m.Title}})
	return nil
}

// Reorder assigns order_index 1..n following the given ids, which must be
// exactly the course's modules.
func (s *Service) Reorder(ctx context.Context, user models.User, courseID uint, ids []uint) ([]models.Module, error) {
	c, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.Module{}).Where("course_id = ?", courseID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if !sameSet(existing, ids) {
			return apierr.BadRequest("Module list must contain every module of the course exactly once")
		}
		for i, id := range ids {
			if err := tx.Model(&models.Module{}).Where("id = ?", id).Update("order_index", i+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var rows []models.Module
	if err := s.db.WithContext(ctx).Where("course_id = ?", courseID).Order("order_index, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		s.reindex(ctx, m)
	}
	return rows, nil
}

func sameSet(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func (s *Service) reindex(ctx context.Context, m models.Module) {
	if err := s.indexer.IndexModule(ctx, m); err != nil {
		s.log.Warn("index module", "module_id", m.ID, "error", err)
	}
}

// DeleteTree removes modules with their quizzes, attempts and progress rows.
// Documents stay in storage but are detached. Must run inside a transaction.
func DeleteTree(tx *gorm.DB, moduleIDs []uint) error {
	if len(moduleIDs) == 0 {
		return nil
	}
	var quizIDs, questionIDs, attemptIDs, progressIDs []uint
	if err := tx.Model(&models.Quiz{}).Where("module_id IN ?", moduleIDs).Pluck("id", &quizIDs).Error; err != nil {
		return err
	}
	if len(quizIDs) > 0 {
		if err := tx.Model(&models.Question{}).Where("quiz_id IN ?", quizIDs).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.QuizAttempt{}).Where("quiz_id IN ?", quizIDs).Pluck("id", &attemptIDs).Error; err != nil {
			return err
		}
	}
	if len(attemptIDs) > 0 {
		if err := tx.Where("attempt_id IN ?", attemptIDs).Delete(&models.QuizResponse{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", attemptIDs).Delete(&models.QuizAttempt{}).Error; err != nil {
			return err
		}
	}
	if len(questionIDs) > 0 {
		if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", questionIDs).Delete(&models.Question{}).Error; err != nil {
			return err
		}
	}
	if len(quizIDs) > 0 {
		if err := tx.Where("id IN ?", quizIDs).Delete(&models.Quiz{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(&models.ModuleProgress{}).Where("module_id IN ?", moduleIDs).Pluck("id", &progressIDs).Error; err != nil {
		return err
	}
	if len(progressIDs) > 0 {
		if err := tx.Where("module_progress_id IN ?", progressIDs).Delete(&models.ContentProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", progressIDs).Delete(&models.ModuleProgress{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(&models.Document{}).Where("module_id IN ?", moduleIDs).Update("module_id", nil).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", moduleIDs).Delete(&models.Module{}).Error
}

package webinars

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errWebinarNotFound = apierr.NotFound("Webinar not found")

type CreateRequest struct {
	Title           string               `json:"title" validate:"required,max=200"`
	Description     string               `json:"description"`
	PresenterID     *uint                `json:"presenter_id"`
	ScheduledAt     time.Time            `json:"scheduled_at" validate:"required"`
	Duration        int                  `json:"duration" validate:"required,min=1"`
	MeetingURL      string               `json:"meeting_url" validate:"omitempty,max=500"`
	MeetingID       string               `json:"meeting_id" validate:"omitempty,max=100"`
	MaxParticipants *int                 `json:"max_participants" validate:"omitempty,min=1"`
	Status          models.WebinarStatus `json:"status" validate:"omitempty,oneof=scheduled live completed cancelled"`
	IsRecorded      bool                 `json:"is_recorded"`
}

type UpdateRequest struct {
	Title           *string               `json:"title" validate:"omitempty,max=200"`
	Description     *string               `json:"description"`
	PresenterID     *uint                 `json:"presenter_id"`
	ScheduledAt     *time.Time            `json:"scheduled_at"`
	Duration        *int                  `json:"duration" validate:"omitempty,min=1"`
	MeetingURL      *string               `json:"meeting_url" validate:"omitempty,max=500"`
	MeetingID       *string               `json:"meeting_id" validate:"omitempty,max=100"`
	MaxParticipants *int                  `json:"max_participants" validate:"omitempty,min=1"`
	Status          *models.WebinarStatus `json:"status" validate:"omitempty,oneof=scheduled live completed cancelled"`
	RecordingURL    *string               `json:"recording_url" validate:"omitempty,max=500"`
	IsRecorded      *bool                 `json:"is_recorded"`
}

type WebinarView struct {
	models.Webinar
	RegisteredCount int64 `json:"registered_count"`
	IsRegistered    bool  `json:"is_registered"`
}

type RegistrationView struct {
	models.WebinarRegistration
	UserName string `json:"user_name"`
}

type Service struct {
	db    *gorm.DB
	audit audit.Recorder
	log   *logger.Logger
}

func NewService(db *gorm.DB, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, audit: rec, log: baseLog.With("service", "WebinarService")}
}

func (s *Service) List(ctx context.Context, search, status string, p pagination.Params) (pagination.Page[models.Webinar], error) {
	q := s.db.WithContext(ctx).Model(&models.Webinar{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.Webinar]{}, err
	}
	rows := []models.Webinar{}
	if err := q.Order("scheduled_at, id").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.Webinar]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func (s *Service) presenterExists(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apierr.BadRequest("Presenter not found")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor models.User, req CreateRequest) (*models.Webinar, error) {
	if err := s.presenterExists(ctx, req.PresenterID); err != nil {
		return nil, err
	}
	w := models.Webinar{
		Title:           req.Title,
		Description:     req.Description,
		PresenterID:     req.PresenterID,
		ScheduledAt:     req.ScheduledAt,
		Duration:        req.Duration,
		MeetingURL:      req.MeetingURL,
		MeetingID:       req.MeetingID,
		MaxParticipants: req.MaxParticipants,
		Status:          models.WebinarScheduled,
		IsRecorded:      req.IsRecorded,
	}
	if req.Status != "" {
		w.Status = req.Status
	}
	if w.PresenterID == nil {
		w.PresenterID = &actor.ID
	}
	if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, fmt.Errorf("create webinar: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "Webinar", EntityID: &w.ID})
	return &w, nil
}

func (s *Service) find(ctx context.Context, db *gorm.DB, id uint) (*models.Webinar, error) {
	var w models.Webinar
	if err := db.WithContext(ctx).Limit(1).Find(&w, id).Error; err != nil {
		return nil, err
	}
	if w.ID == 0 {
		return nil, errWebinarNotFound
	}
	return &w, nil
}

// Get adds the registration count and whether viewer is registered.
func (s *Service) Get(ctx context.Context, id uint, viewer models.User) (*WebinarView, error) {
	w, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	out := &WebinarView{Webinar: *w}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.WebinarRegistration{}).Where("webinar_id = ?", id).Count(&out.RegisteredCount).Error; err != nil {
		return nil, err
	}
	var mine int64
	if err := db.Model(&models.WebinarRegistration{}).Where("webinar_id = ? AND user_id = ?", id, viewer.ID).Count(&mine).Error; err != nil {
		return nil, err
	}
	out.IsRegistered = mine > 0
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor models.User, id uint, req UpdateRequest) (*models.Webinar, error) {
	w, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.presenterExists(ctx, req.PresenterID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.PresenterID != nil {
		updates["presenter_id"] = *req.PresenterID
	}
	if req.ScheduledAt != nil {
		updates["scheduled_at"] = *req.ScheduledAt
	}
	if req.Duration != nil {
		updates["duration"] = *req.Duration
	}
	if req.MeetingURL != nil {
		updates["meeting_url"] = *req.MeetingURL
	}
	if req.MeetingID != nil {
		updates["meeting_id"] = *req.MeetingID
	}
	if req.MaxParticipants != nil {
		updates["max_participants"] = *req.MaxParticipants
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.RecordingURL != nil {
		updates["recording_url"] = *req.RecordingURL
	}
	if req.IsRecorded != nil {
		updates["is_recorded"] = *req.IsRecorded
	}
	moved := req.ScheduledAt != nil && !req.ScheduledAt.Equal(w.ScheduledAt)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(w).Updates(updates).Error; err != nil {
				return err
			}
		}
		// a moved webinar needs a fresh reminder
		if moved {
			return tx.Model(&models.WebinarRegistration{}).Where("webinar_id = ?", id).Update("reminded_at", nil).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update webinar: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "Webinar", EntityID: &w.ID})
	return s.find(ctx, s.db, id)
}

func (s *Service) Delete(ctx context.Context, actor models.User, id uint) error {
	w, err := s.find(ctx, s.db, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("webinar_id = ?", id).Delete(&models.WebinarRegistration{}).Error; err != nil {
			return err
		}
		return tx.Delete(w).Error
	})
	if err != nil {
		return fmt.Errorf("delete webinar: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionDelete, EntityType: "Webinar", EntityID: &id})
	return nil
}

// Register checks capacity inside the transaction; the unique pair index
// catches a concurrent duplicate.
func (s *Service) Register(ctx context.Context, webinarID, userID uint) (*models.WebinarRegistration, error) {
	var reg models.WebinarRegistration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.find(ctx, tx, webinarID)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("User not found")
		}
		if w.Status == models.WebinarCancelled || w.Status == models.WebinarCompleted {
			return apierr.BadRequest("Webinar is not open for registration")
		}
		if err := tx.Model(&models.WebinarRegistration{}).Where("webinar_id = ? AND user_id = ?", webinarID, userID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("User already registered for this webinar")
		}
		if w.MaxParticipants != nil {
			if err := tx.Model(&models.WebinarRegistration{}).Where("webinar_id = ?", webinarID).Count(&n).Error; err != nil {
				return err
			}
			if n >= int64(*w.MaxParticipants) {
				return apierr.BadRequest("Webinar is full")
			}
		}
		reg = models.WebinarRegistration{WebinarID: webinarID, UserID: userID, RegisteredAt: time.Now()}
		return tx.Create(&reg).Error
	})
	if err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("User already registered for this webinar")
		}
		return nil, err
	}
	return &reg, nil
}

func (s *Service) Registrations(ctx context.Context, webinarID uint, p pagination.Params) (pagination.Page[RegistrationView], error) {
	if _, err := s.find(ctx, s.db, webinarID); err != nil {
		return pagination.Page[RegistrationView]{}, err
	}
	q := s.db.WithContext(ctx).Model(&models.WebinarRegistration{}).Where("webinar_id = ?", webinarID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[RegistrationView]{}, err
	}
	var rows []models.WebinarRegistration
	if err := q.Order("registered_at, id").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[RegistrationView]{}, err
	}
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	var users []models.User
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return pagination.Page[RegistrationView]{}, err
		}
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName()
	}
	items := make([]RegistrationView, 0, len(rows))
	for _, r := range rows {
		name, ok := names[r.UserID]
		if !ok {
			name = "Unknown"
		}
		items = append(items, RegistrationView{WebinarRegistration: r, UserName: name})
	}
	return pagination.New(items, total, p), nil
}

func (s *Service) Unregister(ctx context.Context, webinarID, userID uint) error {
	res := s.db.WithContext(ctx).Where("webinar_id = ? AND user_id = ?", webinarID, userID).Delete(&models.WebinarRegistration{})
	if res.Error != nil {
		return fmt.Errorf("unregister: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("User not registered for this webinar")
	}
	return nil
}

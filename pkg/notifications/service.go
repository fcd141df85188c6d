package notifications

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errNotificationNotFound = apierr.NotFound("Notification not found")

type CreateRequest struct {
	UserID           uint                        `json:"user_id" validate:"required"`
	Title            string                      `json:"title" validate:"required,max=200"`
	Message          string                      `json:"message" validate:"required"`
	NotificationType models.NotificationType     `json:"notification_type" validate:"required,oneof=assignment reminder achievement announcement webinar"`
	Priority         models.NotificationPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	ActionURL        string                      `json:"action_url" validate:"omitempty,max=500"`
	ScheduledFor     *time.Time                  `json:"scheduled_for"`
}

type Service struct {
	db    *gorm.DB
	push  Pusher
	audit audit.Recorder
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, push Pusher, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, push: push, audit: rec, log: baseLog.With("service", "NotificationService"), now: time.Now}
}

// Create stores a notification written by staff.
func (s *Service) Create(ctx context.Context, actor models.User, req CreateRequest) (*models.Notification, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", req.UserID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apierr.NotFound("User not found")
	}
	row := models.Notification{
		UserID:           req.UserID,
		Title:            req.Title,
		Message:          req.Message,
		NotificationType: req.NotificationType,
		Priority:         req.Priority,
		ActionURL:        req.ActionURL,
		ScheduledFor:     req.ScheduledFor,
	}
	if err := s.Deliver(ctx, &row); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "Notification", EntityID: &row.ID})
	return &row, nil
}

// Deliver persists n and pushes it to the user's open sockets unless it is
// scheduled for later.
func (s *Service) Deliver(ctx context.Context, n *models.Notification) error {
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	now := s.now()
	due := n.ScheduledFor == nil || !n.ScheduledFor.After(now)
	if due {
		n.SentAt = &now
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if due && s.push != nil {
		s.push.Push(n.UserID, n)
	}
	return nil
}

// ListMine hides notifications scheduled for the future.
func (s *Service) ListMine(ctx context.Context, userID uint, unreadOnly bool, p pagination.Params) (pagination.Page[models.Notification], error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Where("(scheduled_for IS NULL OR scheduled_for <= ?)", s.now())
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.Notification]{}, err
	}
	rows := []models.Notification{}
	if err := q.Order("created_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.Notification]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Where("(scheduled_for IS NULL OR scheduled_for <= ?)", s.now()).
		Count(&n).Error
	return n, err
}

// Get returns 404 for other users' notifications.
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var row models.Notification
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&row, id).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, errNotificationNotFound
	}
	return &row, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !row.IsRead {
		if err := s.db.WithContext(ctx).Model(row).Update("is_read", true).Error; err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		row.IsRead = true
	}
	return row, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(row).Error; err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

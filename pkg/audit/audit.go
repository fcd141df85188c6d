package audit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

type Entry struct {
	UserID     *uint
	Action     models.AuditAction
	EntityType string
	EntityID   *uint
	Details    map[string]interface{}
	IP         string
}

// Recorder writes audit entries. Implementations must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(db *gorm.DB, baseLog *logger.Logger) *Service {
	return &Service{db: db, log: baseLog.With("service", "AuditService")}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	details := []byte("{}")
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			details = b
		}
	}
	row := models.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    details,
		IPAddress:  e.IP,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Error("write audit log", "action", e.Action, "entity", e.EntityType, "error", err)
	}
}

type ListFilter struct {
	UserID     *uint
	Action     string
	EntityType string
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) (pagination.Page[models.AuditLog], error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", strings.ToUpper(f.Action))
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.AuditLog]{}, err
	}
	var rows []models.AuditLog
	if err := q.Order("created_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.AuditLog]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.AuditLog, error) {
	var row models.AuditLog
	if err := s.db.WithContext(ctx).Limit(1).Find(&row, id).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, apierr.NotFound("Audit log not found")
	}
	return &row, nil
}

type Summary struct {
	Total    int64            `json:"total"`
	ByAction map[string]int64 `json:"by_action"`
	ByEntity map[string]int64 `json:"by_entity"`
	Since    time.Time        `json:"since"`
}

// Summarize counts entries by action and entity type over the last days.
func (s *Service) Summarize(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	out := &Summary{ByAction: map[string]int64{}, ByEntity: map[string]int64{}, Since: since}

	type bucket struct {
		Name  string
		Count int64
	}
	var actions, entities []bucket
	base := s.db.WithContext(ctx).Model(&models.AuditLog{}).Where("created_at >= ?", since)
	if err := base.Session(&gorm.Session{}).Select("action AS name, COUNT(*) AS count").Group("action").Scan(&actions).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Select("entity_type AS name, COUNT(*) AS count").Group("entity_type").Scan(&entities).Error; err != nil {
		return nil, err
	}
	for _, b := range actions {
		out.ByAction[b.Name] = b.Count
		out.Total += b.Count
	}
	for _, b := range entities {
		out.ByEntity[b.Name] = b.Count
	}
	return out, nil
}

// ClientIP prefers the first X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func Uint(v uint) *uint { return &v }

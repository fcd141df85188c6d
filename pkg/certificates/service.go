package certificates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errCertificateNotFound = apierr.NotFound("Certificate not found")

type CreateRequest struct {
	UserID          uint                   `json:"user_id" validate:"required"`
	CourseID        *uint                  `json:"course_id"`
	CertificateType models.CertificateType `json:"certificate_type" validate:"required,oneof=completion achievement participation"`
	IssuedAt        *time.Time             `json:"issued_at"`
	ExpiresAt       *time.Time             `json:"expires_at"`
	CertificateURL  string                 `json:"certificate_url" validate:"omitempty,max=500"`
}

type UpdateRequest struct {
	CertificateType *models.CertificateType `json:"certificate_type" validate:"omitempty,oneof=completion achievement participation"`
	IssuedAt        *time.Time              `json:"issued_at"`
	ExpiresAt       *time.Time              `json:"expires_at"`
	CertificateURL  *string                 `json:"certificate_url" validate:"omitempty,max=500"`
	IsValid         *bool                   `json:"is_valid"`
}

type CertificateView struct {
	models.Certificate
	UserName    string `json:"user_name"`
	CourseTitle string `json:"course_title"`
}

type Verification struct {
	Valid       bool             `json:"valid"`
	Certificate *CertificateView `json:"certificate"`
}

type Service struct {
	db    *gorm.DB
	audit audit.Recorder
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, audit: rec, log: baseLog.With("service", "CertificateService"), now: time.Now}
}

func (s *Service) view(ctx context.Context, c models.Certificate) (*CertificateView, error) {
	db := s.db.WithContext(ctx)
	out := &CertificateView{Certificate: c, UserName: "Unknown", CourseTitle: "N/A"}
	var u models.User
	if err := db.Limit(1).Find(&u, c.UserID).Error; err != nil {
		return nil, err
	}
	if u.ID != 0 {
		out.UserName = u.FullName()
	}
	if c.CourseID != nil {
		var course models.Course
		if err := db.Limit(1).Find(&course, *c.CourseID).Error; err != nil {
			return nil, err
		}
		if course.ID != 0 {
			out.CourseTitle = course.Title
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, userID, courseID *uint, p pagination.Params) (pagination.Page[CertificateView], error) {
	q := s.db.WithContext(ctx).Model(&models.Certificate{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if courseID != nil {
		q = q.Where("course_id = ?", *courseID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[CertificateView]{}, err
	}
	var rows []models.Certificate
	if err := q.Order("issued_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[CertificateView]{}, err
	}
	items := make([]CertificateView, 0, len(rows))
	for _, c := range rows {
		v, err := s.view(ctx, c)
		if err != nil {
			return pagination.Page[CertificateView]{}, err
		}
		items = append(items, *v)
	}
	return pagination.New(items, total, p), nil
}

// Create issues a certificate with a fresh verification code. issued_at
// defaults to now.
func (s *Service) Create(ctx context.Context, actor models.User, req CreateRequest) (*CertificateView, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.User{}).Where("id = ?", req.UserID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apierr.NotFound("User not found")
	}
	if req.CourseID != nil {
		if err := db.Model(&models.Course{}).Where("id = ?", *req.CourseID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apierr.NotFound("Course not found")
		}
	}
	c := models.Certificate{
		UserID:           req.UserID,
		CourseID:         req.CourseID,
		CertificateType:  req.CertificateType,
		IssuedAt:         s.now(),
		ExpiresAt:        req.ExpiresAt,
		CertificateURL:   req.CertificateURL,
		VerificationCode: uuid.NewString(),
		IsValid:          true,
	}
	if req.IssuedAt != nil {
		c.IssuedAt = *req.IssuedAt
	}
	if err := db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "Certificate", EntityID: &c.ID,
		Details: map[string]interface{}{"user_id": c.UserID, "type": c.CertificateType}})
	return s.view(ctx, c)
}

func (s *Service) find(ctx context.Context, id uint) (*models.Certificate, error) {
	var c models.Certificate
	if err := s.db.WithContext(ctx).Limit(1).Find(&c, id).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, errCertificateNotFound
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*CertificateView, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, *c)
}

func (s *Service) Update(ctx context.Context, actor models.User, id uint, req UpdateRequest) (*CertificateView, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.CertificateType != nil {
		updates["certificate_type"] = *req.CertificateType
	}
	if req.IssuedAt != nil {
		updates["issued_at"] = *req.IssuedAt
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if req.CertificateURL != nil {
		updates["certificate_url"] = *req.CertificateURL
	}
	if req.IsValid != nil {
		updates["is_valid"] = *req.IsValid
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update certificate: %w", err)
		}
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "Certificate", EntityID: &c.ID})
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, actor models.User, id uint) error {
	c, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(c).Error; err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionDelete, EntityType: "Certificate", EntityID: &id})
	return nil
}

// Verify looks a certificate up by its public code. Revoked and expired
// certificates are returned with Valid false.
func (s *Service) Verify(ctx context.Context, code string) (*Verification, error) {
	var c models.Certificate
	if err := s.db.WithContext(ctx).Where("verification_code = ?", code).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, errCertificateNotFound
	}
	v, err := s.view(ctx, c)
	if err != nil {
		return nil, err
	}
	valid := c.IsValid && (c.ExpiresAt == nil || c.ExpiresAt.After(s.now()))
	return &Verification{Valid: valid, Certificate: v}, nil
}

package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/goauth"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errUserNotFound = apierr.NotFound("User not found")

type CreateRequest struct {
	Email     string      `json:"email" validate:"required,email,max=255"`
	Username  string      `json:"username" validate:"required,min=3,max=50"`
	Password  string      `json:"password" validate:"required,password"`
	FirstName string      `json:"first_name" validate:"required,max=100"`
	LastName  string      `json:"last_name" validate:"required,max=100"`
	Phone     string      `json:"phone" validate:"omitempty,max=20"`
	Role      models.Role `json:"role" validate:"omitempty,oneof=admin employee hr resource_personnel"`
	IsActive  *bool       `json:"is_active"`
}

type UpdateRequest struct {
	FirstName *string      `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string      `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string      `json:"phone" validate:"omitempty,max=20"`
	Role      *models.Role `json:"role" validate:"omitempty,oneof=admin employee hr resource_personnel"`
	IsActive  *bool        `json:"is_active"`
}

type ListFilter struct {
	Role      models.Role
	IsActive  *bool
	Search    string
	SortBy    string
	SortOrder string
}

// UserDetail adds learning totals to the profile.
type UserDetail struct {
	models.User
	TotalEnrollments  int64 `json:"total_enrollments"`
	CompletedCourses  int64 `json:"completed_courses"`
	TotalPoints       int64 `json:"total_points"`
	TotalCertificates int64 `json:"total_certificates"`
	TotalBadges       int64 `json:"total_badges"`
}

type Stats struct {
	TotalUsers        int64            `json:"total_users"`
	ActiveUsers       int64            `json:"active_users"`
	NewUsersThisMonth int64            `json:"new_users_this_month"`
	UsersByRole       map[string]int64 `json:"users_by_role"`
}

type Service struct {
	db    *gorm.DB
	audit audit.Recorder
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, audit: rec, log: baseLog.With("service", "UserService"), now: time.Now}
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"name":       "first_name",
	"email":      "email",
	"username":   "username",
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) (pagination.Page[models.User], error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(username) LIKE ?)", like, like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.User]{}, err
	}
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "desc"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "asc"
	}
	rows := []models.User{}
	if err := q.Order(col + " " + dir).Order("id " + dir).Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.User]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func (s *Service) find(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Limit(1).Find(&u, id).Error; err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, errUserNotFound
	}
	return &u, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*UserDetail, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	out := &UserDetail{User: *u}
	if err := db.Model(&models.Enrollment{}).Where("user_id = ?", id).Count(&out.TotalEnrollments).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Enrollment{}).Where("user_id = ? AND status = ?", id, models.EnrollmentCompleted).Count(&out.CompletedCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserPoints{}).Where("user_id = ?", id).Select("COALESCE(SUM(points), 0)").Scan(&out.TotalPoints).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Certificate{}).Where("user_id = ?", id).Count(&out.TotalCertificates).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserBadge{}).Where("user_id = ?", id).Count(&out.TotalBadges).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Create is the admin path; unlike registration it can set role and
// skips email verification.
func (s *Service) Create(ctx context.Context, actor models.User, req CreateRequest) (*UserDetail, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := goauth.CheckUnique(ctx, s.db, req.Email, req.Username, 0); err != nil {
		return nil, err
	}
	hash, err := goauth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         models.RoleEmployee,
		IsActive:     true,
		IsVerified:   true,
	}
	if req.Role != "" {
		u.Role = req.Role
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("Email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "User", EntityID: &u.ID,
		Details: map[string]interface{}{"role": u.Role}})
	return s.Get(ctx, u.ID)
}

func (s *Service) Update(ctx context.Context, actor models.User, id uint, req UpdateRequest) (*UserDetail, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		if !*req.IsActive && u.ID == actor.ID {
			return nil, apierr.BadRequest("You cannot deactivate your own account")
		}
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "User", EntityID: &u.ID})
	return s.Get(ctx, id)
}

// Deactivate never deletes; enrollments and attempts keep their owner.
func (s *Service) Deactivate(ctx context.Context, actor models.User, id uint) error {
	u, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if u.ID == actor.ID {
		return apierr.BadRequest("You cannot deactivate your own account")
	}
	if err := s.db.WithContext(ctx).Model(u).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionDelete, EntityType: "User", EntityID: &u.ID})
	return nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	out := &Stats{UsersByRole: map[string]int64{}}
	if err := db.Model(&models.User{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&out.ActiveUsers).Error; err != nil {
		return nil, err
	}
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.User{}).Where("created_at >= ?", monthStart).Count(&out.NewUsersThisMonth).Error; err != nil {
		return nil, err
	}
	var byRole []struct {
		Role  string
		Count int64
	}
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&byRole).Error; err != nil {
		return nil, err
	}
	for _, r := range byRole {
		out.UsersByRole[r.Role] = r.Count
	}
	return out, nil
}

package goauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/config"
	"lms-backend/pkg/email"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/token"
)

const (
	verifyPrefix = "verify:"
	resetPrefix  = "reset:"
	verifyTTL    = 24 * time.Hour
	resetTTL     = time.Hour

	ForgotPasswordMessage = "If the email is registered, a password reset link has been sent"
)

type Mailer interface {
	Deliver(to, subject, tmpl string, data *email.EmailData) bool
}

type Service struct {
	db      *gorm.DB
	tokens  *token.TokenManager
	codes   CodeStore
	mailer  Mailer
	audit   audit.Recorder
	linkURL string
	log     *logger.Logger
}

func NewService(cfg *config.Config, db *gorm.DB, tokens *token.TokenManager, codes CodeStore, mailer Mailer, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{
		db:      db,
		tokens:  tokens,
		codes:   codes,
		mailer:  mailer,
		audit:   rec,
		linkURL: strings.TrimRight(cfg.BaseURL, "/") + cfg.APIV1,
		log:     baseLog.With("service", "AuthService"),
	}
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
}

func HashPassword(p string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckUnique returns 400 when email or username is taken by another user.
func CheckUnique(ctx context.Context, db *gorm.DB, emailAddr, username string, exceptID uint) error {
	var n int64
	if emailAddr != "" {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", emailAddr, exceptID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Email already registered")
		}
	}
	if username != "" {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ? AND id <> ?", username, exceptID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Username already taken")
		}
	}
	return nil
}

// Register creates an employee account and mails a verification link.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := CheckUnique(ctx, s.db, req.Email, req.Username, 0); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         models.RoleEmployee,
		IsActive:     true,
		IsVerified:   false,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("Email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.sendCode(ctx, user, verifyPrefix, verifyTTL, "Verify your email", email.TemplateVerifyEmail, "/auth/verify-email?token=")
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionCreate, EntityType: "User", EntityID: &user.ID})
	return &user, nil
}

func (s *Service) sendCode(ctx context.Context, u models.User, prefix string, ttl time.Duration, subject, tmpl, path string) {
	code := uuid.NewString()
	if err := s.codes.Save(ctx, prefix+code, strconv.FormatUint(uint64(u.ID), 10), ttl); err != nil {
		s.log.Error("store one-time code", "kind", prefix, "user_id", u.ID, "error", err)
		return
	}
	s.mailer.Deliver(u.Email, subject, tmpl, &email.EmailData{Name: u.FullName(), Link: s.linkURL + path + code})
}

func (s *Service) Login(ctx context.Context, emailAddr, password, ip string) (*token.TokenPair, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(emailAddr))).Limit(1).Find(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apierr.Unauthorized("Invalid email or password")
	}
	if !user.IsActive {
		return nil, apierr.Unauthorized("Account is deactivated")
	}
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		return nil, fmt.Errorf("stamp last login: %w", err)
	}
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionLogin, EntityType: "User", EntityID: &user.ID, IP: ip})
	return pair, nil
}

func (s *Service) Refresh(ctx context.Context, refresh string) (*token.TokenPair, error) {
	claims, err := s.tokens.Verify(refresh, token.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrWrongTokenKind) {
			return nil, apierr.Unauthorized("Invalid token type")
		}
		return nil, apierr.Unauthorized("Invalid refresh token")
	}
	id, _ := claims.UserID()
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, apierr.Unauthorized("Invalid refresh token")
	}
	if !user.IsActive {
		return nil, apierr.Unauthorized("Account is deactivated")
	}
	return s.tokens.Issue(*user)
}

// ForgotPassword never reveals whether the address exists.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(emailAddr))).Limit(1).Find(&user).Error
	if err != nil {
		s.log.Error("lookup user for reset", "error", err)
		return
	}
	if user.ID == 0 || !user.IsActive {
		return
	}
	s.sendCode(ctx, user, resetPrefix, resetTTL, "Reset your password", email.TemplateResetPassword, "/auth/reset-password?token=")
}

func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	user, err := s.redeem(ctx, resetPrefix, code)
	if err != nil {
		return apierr.BadRequest("Invalid or expired reset token")
	}
	return s.setPassword(ctx, user, newPassword)
}

func (s *Service) VerifyEmail(ctx context.Context, code string) (*models.User, error) {
	user, err := s.redeem(ctx, verifyPrefix, code)
	if err != nil {
		return nil, apierr.BadRequest("Invalid or expired verification token")
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_verified", true).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, user models.User, current, next string) error {
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apierr.Unauthorized("Incorrect current password")
	}
	if err := s.setPassword(ctx, &user, next); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionUpdate, EntityType: "User", EntityID: &user.ID,
		Details: map[string]interface{}{"field": "password"}})
	return nil
}

type ProfileUpdate struct {
	Username  *string `json:"username" validate:"omitempty,min=3,max=50"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
}

func (s *Service) UpdateProfile(ctx context.Context, user models.User, req ProfileUpdate) (*models.User, error) {
	updates := map[string]interface{}{}
	if req.Username != nil && *req.Username != user.Username {
		if err := CheckUnique(ctx, s.db, "", *req.Username, user.ID); err != nil {
			return nil, err
		}
		updates["username"] = *req.Username
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.load(ctx, user.ID)
}

func (s *Service) redeem(ctx context.Context, prefix, code string) (*models.User, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}
	val, err := s.codes.Take(ctx, prefix+code)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, uint(id))
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error
}

func (s *Service) load(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Limit(1).Find(&user, id).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, apierr.NotFound("User not found")
	}
	return &user, nil
}

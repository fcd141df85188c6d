package models

import "time"

type CertificateType string

const (
	CertificateCompletion    CertificateType = "completion"
	CertificateAchievement   CertificateType = "achievement"
	CertificateParticipation CertificateType = "participation"
)

type Certificate struct {
	Base
	UserID           uint            `gorm:"index;not null" json:"user_id"`
	CourseID         *uint           `gorm:"index" json:"course_id"`
	CertificateType  CertificateType `gorm:"type:certificate_type;default:'completion'" json:"certificate_type"`
	IssuedAt         time.Time       `json:"issued_at"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	CertificateURL   string          `json:"certificate_url"`
	VerificationCode string          `gorm:"uniqueIndex;size:64;not null" json:"verification_code"`
	IsValid          bool            `gorm:"not null" json:"is_valid"`
}

type FileCategory string

const (
	FileDocument FileCategory = "document"
	FileVideo    FileCategory = "video"
	FileImage    FileCategory = "image"
)

// Document is the metadata row for an object stored in MinIO.
type Document struct {
	Base
	FileID      string       `gorm:"uniqueIndex;size:64;not null" json:"file_id"`
	ModuleID    *uint        `gorm:"index" json:"module_id"`
	UploadedBy  uint         `gorm:"index;not null" json:"uploaded_by"`
	FileName    string       `gorm:"not null" json:"filename"`
	Category    FileCategory `gorm:"size:20;not null" json:"category"`
	ObjectPath  string       `gorm:"not null" json:"file_path"`
	ContentType string       `json:"content_type"`
	Size        int64        `gorm:"not null" json:"file_size"`
}

type BadgeType string

const (
	BadgeCourseCompletion BadgeType = "course_completion"
	BadgeStreak           BadgeType = "streak"
	BadgeParticipation    BadgeType = "participation"
	BadgeAchievement      BadgeType = "achievement"
)

type PointsSource string

const (
	PointsCourseCompletion PointsSource = "course_completion"
	PointsQuizScore        PointsSource = "quiz_score"
	PointsParticipation    PointsSource = "participation"
	PointsBonus            PointsSource = "bonus"
)

type Badge struct {
	Base
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string    `json:"description"`
	IconURL     string    `json:"icon_url"`
	Criteria    JSON      `json:"criteria"`
	PointsValue int       `gorm:"not null" json:"points_value"`
	BadgeType   BadgeType `gorm:"size:30;default:'achievement'" json:"badge_type"`
}

// UserBadge is one badge earned by one user; a badge is earned once.
type UserBadge struct {
	Base
	UserID   uint      `gorm:"uniqueIndex:idx_user_badge_pair;not null" json:"user_id"`
	BadgeID  uint      `gorm:"uniqueIndex:idx_user_badge_pair;index;not null" json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
	Reason   string    `json:"reason"`
}

// UserPoints is a ledger entry; a user's total is the sum of their rows.
type UserPoints struct {
	Base
	UserID       uint         `gorm:"index;not null" json:"user_id"`
	Points       int          `gorm:"not null" json:"points"`
	PointsSource PointsSource `gorm:"size:30;not null" json:"points_source"`
	SourceID     string       `gorm:"size:50" json:"source_id"`
	EarnedAt     time.Time    `json:"earned_at"`
	Description  string       `json:"description"`
}

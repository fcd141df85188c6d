package models

import (
	"time"

	"gorm.io/datatypes"
)

type JSON = datatypes.JSON

type CourseStatus string

const (
	CourseDraft       CourseStatus = "draft"
	CourseUnderReview CourseStatus = "under_review"
	CourseApproved    CourseStatus = "approved"
	CoursePublished   CourseStatus = "published"
	CourseArchived    CourseStatus = "archived"
)

type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

type ContentType string

const (
	ContentVideo       ContentType = "video"
	ContentDocument    ContentType = "document"
	ContentQuiz        ContentType = "quiz"
	ContentWebinar     ContentType = "webinar"
	ContentInteractive ContentType = "interactive"
)

type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentDropped    EnrollmentStatus = "dropped"
)

type Category struct {
	Base
	Name        string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string `json:"description"`
	ParentID    *uint  `gorm:"index" json:"parent_id"`
}

type Course struct {
	Base
	Title             string       `gorm:"size:200;not null" json:"title"`
	Description       string       `json:"description"`
	CategoryID        *uint        `gorm:"index" json:"category_id"`
	CreatorID         uint         `gorm:"index;not null" json:"creator_id"`
	Status            CourseStatus `gorm:"type:course_status;default:'draft';index" json:"status"`
	DifficultyLevel   Difficulty   `gorm:"type:difficulty_level;default:'beginner'" json:"difficulty_level"`
	EstimatedDuration int          `json:"estimated_duration"`
	IsMandatory       bool         `gorm:"not null" json:"is_mandatory"`
	Prerequisites     JSON         `json:"prerequisites"`
	Tags              JSON         `json:"tags"`
	ThumbnailURL      string       `json:"thumbnail_url"`
	PublishedAt       *time.Time   `json:"published_at"`
}

// ManagedBy reports whether u may edit the course and its modules.
func (c Course) ManagedBy(u User) bool {
	return u.Role == RoleAdmin || c.CreatorID == u.ID
}

type Module struct {
	Base
	CourseID          uint        `gorm:"index;not null" json:"course_id"`
	Title             string      `gorm:"size:200;not null" json:"title"`
	Description       string      `json:"description"`
	ContentType       ContentType `gorm:"type:content_type;not null" json:"content_type"`
	ContentURL        string      `json:"content_url"`
	ContentData       JSON        `json:"content_data"`
	OrderIndex        int         `gorm:"not null" json:"order_index"`
	IsMandatory       bool        `gorm:"not null" json:"is_mandatory"`
	EstimatedDuration int         `json:"estimated_duration"`
}

// Enrollment is unique per (user, course). Status and ProgressPercentage
// are derived from the module progress rows and never set by callers,
// except for the dropped status.
type Enrollment struct {
	Base
	UserID             uint             `gorm:"uniqueIndex:idx_enrollment_user_course;not null" json:"user_id"`
	CourseID           uint             `gorm:"uniqueIndex:idx_enrollment_user_course;index;not null" json:"course_id"`
	EnrolledAt         time.Time        `json:"enrolled_at"`
	StartedAt          *time.Time       `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	ProgressPercentage float64          `gorm:"not null" json:"progress_percentage"`
	Status             EnrollmentStatus `gorm:"type:enrollment_status;default:'enrolled';index" json:"status"`
	AssignedBy         *uint            `json:"assigned_by"`
	DueDate            *time.Time       `gorm:"index" json:"due_date"`
}

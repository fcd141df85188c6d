package models

import "time"

type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewNeedsRevision ReviewStatus = "needs_revision"
)

type ReviewContent string

const (
	ReviewCourse   ReviewContent = "course"
	ReviewModule   ReviewContent = "module"
	ReviewQuiz     ReviewContent = "quiz"
	ReviewDocument ReviewContent = "document"
	ReviewVideo    ReviewContent = "video"
)

// ContentReview is an approval request for one piece of content. CourseID
// is the course the content belongs to.
type ContentReview struct {
	Base
	ContentType ReviewContent `gorm:"size:20;not null;index:idx_review_content" json:"content_type"`
	ContentID   uint          `gorm:"not null;index:idx_review_content" json:"content_id"`
	CourseID    *uint         `gorm:"index" json:"course_id"`
	SubmitterID uint          `gorm:"index;not null" json:"submitter_id"`
	ReviewerID  *uint         `gorm:"index" json:"reviewer_id"`
	Status      ReviewStatus  `gorm:"size:20;default:'pending';index" json:"status"`
	ReviewNotes string        `json:"review_notes"`
	ReviewedAt  *time.Time    `json:"reviewed_at"`
}

package models

import "time"

type ProgressStatus string

const (
	NotStarted ProgressStatus = "not_started"
	InProgress ProgressStatus = "in_progress"
	Completed  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	return s == NotStarted || s == InProgress || s == Completed
}

type ModuleProgress struct {
	Base
	EnrollmentID uint           `gorm:"uniqueIndex:idx_module_progress_enrollment_module;not null" json:"enrollment_id"`
	ModuleID     uint           `gorm:"uniqueIndex:idx_module_progress_enrollment_module;index;not null" json:"module_id"`
	Status       ProgressStatus `gorm:"type:progress_status;default:'not_started'" json:"status"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	TimeSpent    int            `gorm:"not null" json:"time_spent"`
}

type ContentProgress struct {
	Base
	ModuleProgressID   uint           `gorm:"uniqueIndex:idx_content_progress_module_content;not null" json:"module_progress_id"`
	ContentType        ContentType    `gorm:"uniqueIndex:idx_content_progress_module_content;type:content_type;not null" json:"content_type"`
	Status             ProgressStatus `gorm:"type:progress_status;default:'not_started'" json:"status"`
	ProgressPercentage float64        `gorm:"not null" json:"progress_percentage"`
	TimeSpent          int            `gorm:"not null" json:"time_spent"`
	LastAccessed       time.Time      `json:"last_accessed"`
}

func (ModuleProgress) TableName() string  { return "module_progress" }
func (ContentProgress) TableName() string { return "content_progress" }

package models

import "time"

type LearningAction string

const (
	LearnView     LearningAction = "view"
	LearnStart    LearningAction = "start"
	LearnComplete LearningAction = "complete"
	LearnPause    LearningAction = "pause"
	LearnResume   LearningAction = "resume"
	LearnDownload LearningAction = "download"
)

// LearningEvent is one client-reported learning interaction.
type LearningEvent struct {
	Base
	UserID     uint           `gorm:"index;not null" json:"user_id"`
	CourseID   *uint          `gorm:"index" json:"course_id"`
	ModuleID   *uint          `gorm:"index" json:"module_id"`
	ActionType LearningAction `gorm:"size:20;not null" json:"action_type"`
	ActionData JSON           `json:"action_data"`
	Timestamp  time.Time      `gorm:"index" json:"timestamp"`
}

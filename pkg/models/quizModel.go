package models

import "time"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

// OptionGraded reports whether answers are graded by the selected option.
func (t QuestionType) OptionGraded() bool {
	return t == MultipleChoice || t == TrueFalse
}

const (
	DefaultMaxAttempts  = 3
	DefaultPassingScore = 70
	DefaultPoints       = 1
)

type Quiz struct {
	Base
	ModuleID               uint   `gorm:"index;not null" json:"module_id"`
	Title                  string `gorm:"size:200;not null" json:"title"`
	Description            string `json:"description"`
	TimeLimit              *int   `json:"time_limit"`
	MaxAttempts            int    `gorm:"not null" json:"max_attempts"`
	PassingScore           int    `gorm:"not null" json:"passing_score"`
	RandomizeQuestions     bool   `gorm:"not null" json:"randomize_questions"`
	ShowResultsImmediately bool   `gorm:"not null" json:"show_results_immediately"`
	AllowReview            bool   `gorm:"not null" json:"allow_review"`
}

type Question struct {
	Base
	QuizID       uint         `gorm:"index;not null" json:"quiz_id"`
	QuestionText string       `gorm:"not null" json:"question_text"`
	QuestionType QuestionType `gorm:"type:question_type;not null" json:"question_type"`
	Points       int          `gorm:"not null" json:"points"`
	OrderIndex   int          `gorm:"not null" json:"order_index"`
	Explanation  string       `json:"explanation"`
}

type QuestionOption struct {
	Base
	QuestionID uint   `gorm:"index;not null" json:"question_id"`
	OptionText string `gorm:"not null" json:"option_text"`
	IsCorrect  bool   `gorm:"not null" json:"is_correct"`
	OrderIndex int    `gorm:"not null" json:"order_index"`
}

// QuizAttempt is unique per (quiz, user, attempt number), which bounds
// concurrent submissions by max_attempts.
type QuizAttempt struct {
	Base
	QuizID        uint       `gorm:"uniqueIndex:idx_attempt_quiz_user_number;not null" json:"quiz_id"`
	UserID        uint       `gorm:"uniqueIndex:idx_attempt_quiz_user_number;index;not null" json:"user_id"`
	AttemptNumber int        `gorm:"uniqueIndex:idx_attempt_quiz_user_number;not null" json:"attempt_number"`
	Score         float64    `gorm:"not null" json:"score"`
	TotalPoints   int        `gorm:"not null" json:"total_points"`
	EarnedPoints  int        `gorm:"not null" json:"earned_points"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	TimeSpent     int        `json:"time_spent"`
	IsPassed      bool       `gorm:"not null" json:"is_passed"`
}

type QuizResponse struct {
	Base
	AttemptID        uint   `gorm:"index;not null" json:"attempt_id"`
	QuestionID       uint   `gorm:"index;not null" json:"question_id"`
	SelectedOptionID *uint  `json:"selected_option_id"`
	TextResponse     string `json:"text_response"`
	IsCorrect        bool   `gorm:"not null" json:"is_correct"`
	PointsEarned     int    `gorm:"not null" json:"points_earned"`
}

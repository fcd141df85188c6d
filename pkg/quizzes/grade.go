package quizzes

import (
	"strings"

	"lms-backend/pkg/models"
)

type Answer struct {
	QuestionID       uint   `json:"question_id" validate:"required"`
	SelectedOptionID *uint  `json:"selected_option_id"`
	TextResponse     string `json:"text_response"`
}

// Key is what grading needs to know about one question.
type Key struct {
	Type    models.QuestionType
	Points  int
	Correct map[uint]bool // option id -> is_correct
}

type Result struct {
	TotalPoints  int
	EarnedPoints int
	Score        float64
	Passed       bool
	Responses    []models.QuizResponse
}

// Grade scores answers against the quiz's questions. Option questions earn
// their points when the selected option belongs to the question and is
// marked correct. Text questions earn full points for any non-blank
// answer. Answers to unknown questions are ignored and only the first
// answer per question counts.
func Grade(keys map[uint]Key, answers []Answer, passingScore int) Result {
	var res Result
	for _, k := range keys {
		res.TotalPoints += k.Points
	}
	seen := make(map[uint]bool, len(answers))
	for _, a := range answers {
		k, ok := keys[a.QuestionID]
		if !ok || seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true

		correct := false
		if k.Type.OptionGraded() {
			correct = a.SelectedOptionID != nil && k.Correct[*a.SelectedOptionID]
		} else {
			correct = strings.TrimSpace(a.TextResponse) != ""
		}
		earned := 0
		if correct {
			earned = k.Points
		}
		res.EarnedPoints += earned
		res.Responses = append(res.Responses, models.QuizResponse{
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			TextResponse:     a.TextResponse,
			IsCorrect:        correct,
			PointsEarned:     earned,
		})
	}
	if res.TotalPoints > 0 {
		res.Score = float64(res.EarnedPoints) / float64(res.TotalPoints) * 100
	}
	res.Passed = res.Score >= float64(passingScore)
	return res
}

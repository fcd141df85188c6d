package quizzes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lms-backend/pkg/models"
)

func uptr(v uint) *uint { return &v }

func TestGrade(t *testing.T) {
	keys := map[uint]Key{
		1: {Type: models.MultipleChoice, Points: 2, Correct: map[uint]bool{10: true, 11: false, 12: true}},
		2: {Type: models.TrueFalse, Points: 1, Correct: map[uint]bool{20: true, 21: false}},
		3: {Type: models.ShortAnswer, Points: 1, Correct: map[uint]bool{}},
		4: {Type: models.Essay, Points: 1, Correct: map[uint]bool{}},
	}

	tests := []struct {
		name    string
		answers []Answer
		earned  int
		score   float64
		passed  bool
	}{
		{
			name:    "no answers",
			answers: nil,
			earned:  0,
			score:   0,
		},
		{
			name: "all correct",
			answers: []Answer{
				{QuestionID: 1, SelectedOptionID: uptr(12)},
				{QuestionID: 2, SelectedOptionID: uptr(20)},
				{QuestionID: 3, TextResponse: "a wrench"},
				{QuestionID: 4, TextResponse: "long answer"},
			},
			earned: 5,
			score:  100,
			passed: true,
		},
		{
			name: "wrong option and blank text",
			answers: []Answer{
				{QuestionID: 1, SelectedOptionID: uptr(11)},
				{QuestionID: 2, SelectedOptionID: uptr(20)},
				{QuestionID: 3, TextResponse: "   "},
				{QuestionID: 4, TextResponse: "x"},
			},
			earned: 2,
			score:  40,
		},
		{
			name: "option from another question earns nothing",
			answers: []Answer{
				{QuestionID: 2, SelectedOptionID: uptr(10)},
				{QuestionID: 1},
			},
			earned: 0,
			score:  0,
		},
		{
			name: "unknown question ignored and repeats count once",
			answers: []Answer{
				{QuestionID: 99, TextResponse: "x"},
				{QuestionID: 1, SelectedOptionID: uptr(10)},
				{QuestionID: 1, SelectedOptionID: uptr(12)},
				{QuestionID: 2, SelectedOptionID: uptr(20)},
				{QuestionID: 3, TextResponse: "y"},
			},
			earned: 4,
			score:  80,
			passed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade(keys, tt.answers, 70)
			assert.Equal(t, 5, res.TotalPoints)
			assert.Equal(t, tt.earned, res.EarnedPoints)
			assert.InDelta(t, tt.score, res.Score, 0.0001)
			assert.Equal(t, tt.passed, res.Passed)
			sum := 0
			for _, r := range res.Responses {
				sum += r.PointsEarned
				assert.Equal(t, r.PointsEarned > 0, r.IsCorrect)
			}
			assert.Equal(t, tt.earned, sum)
		})
	}
}

func TestGradeWithoutQuestions(t *testing.T) {
	res := Grade(map[uint]Key{}, []Answer{{QuestionID: 1, TextResponse: "x"}}, 70)
	assert.Zero(t, res.TotalPoints)
	assert.Zero(t, res.Score)
	assert.False(t, res.Passed)
	assert.Empty(t, res.Responses)
}

func TestCheckOptions(t *testing.T) {
	yes := OptionRequest{OptionText: "yes", IsCorrect: true}
	no := OptionRequest{OptionText: "no"}

	assert.NoError(t, checkOptions(models.MultipleChoice, []OptionRequest{yes, no}))
	assert.Error(t, checkOptions(models.MultipleChoice, []OptionRequest{yes}))
	assert.Error(t, checkOptions(models.MultipleChoice, []OptionRequest{no, no}))
	assert.NoError(t, checkOptions(models.TrueFalse, []OptionRequest{yes, no}))
	assert.Error(t, checkOptions(models.TrueFalse, []OptionRequest{yes, yes}))
	assert.Error(t, checkOptions(models.TrueFalse, []OptionRequest{yes, no, no}))
	assert.NoError(t, checkOptions(models.Essay, nil))
	assert.Error(t, checkOptions(models.ShortAnswer, []OptionRequest{yes}))
}

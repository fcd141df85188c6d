package quizzes

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/testdb"
)

type publisher struct {
	mu     sync.Mutex
	events []kfka.Event
}

func (p *publisher) Publish(_ context.Context, ev kfka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	events  *publisher
	author  models.User
	learner models.User
	module  models.Module
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	ev := &publisher{}
	author := testdb.User(t, db, "author", models.RoleResourcePersonnel)
	course := testdb.Course(t, db, author.ID, "Hazmat")
	return &fixture{
		db:      db,
		svc:     NewService(db, ev, audit.NewService(db, logger.Nop()), logger.Nop()),
		events:  ev,
		author:  author,
		learner: testdb.User(t, db, "learner", models.RoleEmployee),
		module:  testdb.Module(t, db, course.ID, "Labels", models.ContentQuiz, 1),
	}
}

// quiz creates a two-question quiz worth 3 points: a true/false (2 pts)
// and a short answer (1 pt).
func (f *fixture) quiz(t *testing.T) *QuizDetail {
	t.Helper()
	two := 2
	detail, err := f.svc.Create(context.Background(), f.author, QuizRequest{
		ModuleID: f.module.ID,
		Title:    "Labels check",
		Questions: []QuestionRequest{
			{
				QuestionText: "Red diamond means flammable",
				QuestionType: models.TrueFalse,
				Points:       &two,
				Options:      []OptionRequest{{OptionText: "True", IsCorrect: true}, {OptionText: "False", OrderIndex: 1}},
			},
			{QuestionText: "Name one class", QuestionType: models.ShortAnswer},
		},
	})
	require.NoError(t, err)
	return detail
}

func (f *fixture) answers(detail *QuizDetail, correct bool) []Answer {
	tf := detail.Questions[0]
	pick := tf.Options[1].ID
	if correct {
		pick = tf.Options[0].ID
	}
	return []Answer{
		{QuestionID: tf.ID, SelectedOptionID: &pick},
		{QuestionID: detail.Questions[1].ID, TextResponse: "corrosives"},
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	assert.Equal(t, models.DefaultMaxAttempts, detail.MaxAttempts)
	assert.Equal(t, models.DefaultPassingScore, detail.PassingScore)
	assert.True(t, detail.ShowResultsImmediately)
	assert.True(t, detail.AllowReview)
	assert.Equal(t, "Labels", detail.ModuleTitle)
	require.Len(t, detail.Questions, 2)
	assert.Equal(t, 2, detail.Questions[0].Points)
	assert.Equal(t, models.DefaultPoints, detail.Questions[1].Points)
	assert.True(t, detail.Questions[0].Options[0].IsCorrect)
	assert.True(t, detail.CanAttempt)
}

func TestCreateRejectsBadOptions(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.author, QuizRequest{
		ModuleID:  f.module.ID,
		Title:     "bad",
		Questions: []QuestionRequest{{QuestionText: "?", QuestionType: models.TrueFalse, Options: []OptionRequest{{OptionText: "True", IsCorrect: true}}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, apierr.StatusOf(err))

	_, err = f.svc.Create(context.Background(), f.author, QuizRequest{ModuleID: 999, Title: "x"})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	_, err = f.svc.Create(context.Background(), f.learner, QuizRequest{ModuleID: f.module.ID, Title: "x"})
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
}

func TestLearnerDoesNotSeeCorrectOptions(t *testing.T) {
	f := newFixture(t)
	created := f.quiz(t)
	detail, err := f.svc.Get(context.Background(), created.ID, f.learner)
	require.NoError(t, err)
	for _, q := range detail.Questions {
		for _, o := range q.Options {
			assert.False(t, o.IsCorrect)
		}
	}
}

func TestSubmitGradesAndNotifies(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)

	view, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: f.answers(detail, true)})
	require.NoError(t, err)
	assert.Equal(t, 1, view.AttemptNumber)
	assert.Equal(t, 3, view.TotalPoints)
	assert.Equal(t, 3, view.EarnedPoints)
	assert.InDelta(t, 100, view.Score, 0.001)
	assert.True(t, view.IsPassed)
	require.NotNil(t, view.CompletedAt)
	require.Len(t, view.Responses, 2)
	assert.Equal(t, "True", view.Responses[0].SelectedOptionText)
	assert.Equal(t, []string{"True"}, view.Responses[0].CorrectAnswer)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, kfka.EventQuizGraded, ev.Type)
	assert.True(t, ev.Passed)
	assert.Equal(t, "Labels check", ev.QuizTitle)

	view, err = f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: f.answers(detail, false)})
	require.NoError(t, err)
	assert.Equal(t, 2, view.AttemptNumber)
	assert.Equal(t, 1, view.EarnedPoints)
	assert.InDelta(t, 100.0/3, view.Score, 0.001)
	assert.False(t, view.IsPassed)

	again, err := f.svc.Get(context.Background(), detail.ID, f.learner)
	require.NoError(t, err)
	assert.EqualValues(t, 2, again.UserAttempts)
	require.NotNil(t, again.BestScore)
	assert.InDelta(t, 100, *again.BestScore, 0.001)
}

func TestFourthAttemptIsRejected(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	for i := 0; i < models.DefaultMaxAttempts; i++ {
		_, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: f.answers(detail, i == 0)})
		require.NoError(t, err)
	}
	_, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: f.answers(detail, true)})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
	assert.Contains(t, err.Error(), "Maximum attempts reached")

	var n int64
	f.db.Model(&models.QuizAttempt{}).Where("user_id = ?", f.learner.ID).Count(&n)
	assert.EqualValues(t, 3, n)

	got, err := f.svc.Get(context.Background(), detail.ID, f.learner)
	require.NoError(t, err)
	assert.False(t, got.CanAttempt)
}

func TestAttemptNumberIsUnique(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	_, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: []Answer{}})
	require.NoError(t, err)
	err = f.db.Create(&models.QuizAttempt{QuizID: detail.ID, UserID: f.learner.ID, AttemptNumber: 1}).Error
	assert.True(t, apierr.IsDuplicate(err))
}

func TestAttemptVisibility(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	view, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: f.answers(detail, false)})
	require.NoError(t, err)

	other := testdb.User(t, f.db, "other", models.RoleEmployee)
	_, err = f.svc.Attempt(context.Background(), other, view.ID)
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))

	allow := false
	_, err = f.svc.Update(context.Background(), f.author, detail.ID, QuizUpdate{AllowReview: &allow})
	require.NoError(t, err)
	own, err := f.svc.Attempt(context.Background(), f.learner, view.ID)
	require.NoError(t, err)
	assert.Empty(t, own.Responses[0].CorrectAnswer)
	staff, err := f.svc.Attempt(context.Background(), f.author, view.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"True"}, staff.Responses[0].CorrectAnswer)

	page, err := f.svc.ListAttempts(context.Background(), detail.ID, &f.learner.ID, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "learner", page.Items[0].UserName)
}

func TestDeleteQuiz(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	_, err := f.svc.Submit(context.Background(), f.learner, detail.ID, SubmitRequest{Responses: []Answer{}})
	require.NoError(t, err)
	err = f.svc.Delete(context.Background(), f.author, detail.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	empty := f.quiz(t)
	require.NoError(t, f.svc.Delete(context.Background(), f.author, empty.ID))
	_, err = f.svc.Get(context.Background(), empty.ID, f.author)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestQuestionLifecycle(t *testing.T) {
	f := newFixture(t)
	detail := f.quiz(t)
	added, err := f.svc.AddQuestion(context.Background(), f.author, detail.ID, QuestionRequest{
		QuestionText: "Pick the oxidizer",
		QuestionType: models.MultipleChoice,
		Options:      []OptionRequest{{OptionText: "O2", IsCorrect: true}, {OptionText: "N2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added.OrderIndex)
	assert.Len(t, added.Options, 2)

	text := "Pick an oxidizer"
	updated, err := f.svc.UpdateQuestion(context.Background(), f.author, added.ID, QuestionUpdate{QuestionText: &text})
	require.NoError(t, err)
	assert.Equal(t, text, updated.QuestionText)

	require.NoError(t, f.svc.DeleteQuestion(context.Background(), f.author, added.ID))
	var n int64
	f.db.Model(&models.QuestionOption{}).Where("question_id = ?", added.ID).Count(&n)
	assert.Zero(t, n)
	err = f.svc.DeleteQuestion(context.Background(), f.author, added.ID)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

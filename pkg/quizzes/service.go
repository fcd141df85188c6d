package quizzes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var (
	errQuizNotFound     = apierr.NotFound("Quiz not found")
	errQuestionNotFound = apierr.NotFound("Question not found")
)

type OptionRequest struct {
	OptionText string `json:"option_text" validate:"required,max=500"`
	IsCorrect  bool   `json:"is_correct"`
	OrderIndex int    `json:"order_index" validate:"gte=0"`
}

type QuestionRequest struct {
	QuestionText string              `json:"question_text" validate:"required"`
	QuestionType models.QuestionType `json:"question_type" validate:"required,oneof=multiple_choice true_false short_answer essay"`
	Points       *int                `json:"points" validate:"omitempty,gt=0"`
	OrderIndex   *int                `json:"order_index" validate:"omitempty,gte=0"`
	Explanation  string              `json:"explanation"`
	Options      []OptionRequest     `json:"options" validate:"dive"`
}

type QuestionUpdate struct {
	QuestionText *string              `json:"question_text" validate:"omitempty,min=1"`
	QuestionType *models.QuestionType `json:"question_type" validate:"omitempty,oneof=multiple_choice true_false short_answer essay"`
	Points       *int                 `json:"points" validate:"omitempty,gt=0"`
	OrderIndex   *int                 `json:"order_index" validate:"omitempty,gte=0"`
	Explanation  *string              `json:"explanation"`
}

type QuizRequest struct {
	ModuleID               uint              `json:"module_id" validate:"required"`
	Title                  string            `json:"title" validate:"required,max=200"`
	Description            string            `json:"description"`
	TimeLimit              *int              `json:"time_limit" validate:"omitempty,gt=0"`
	MaxAttempts            *int              `json:"max_attempts" validate:"omitempty,gt=0"`
	PassingScore           *int              `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	RandomizeQuestions     bool              `json:"randomize_questions"`
	ShowResultsImmediately *bool             `json:"show_results_immediately"`
	AllowReview            *bool             `json:"allow_review"`
	Questions              []QuestionRequest `json:"questions" validate:"dive"`
}

type QuizUpdate struct {
	Title                  *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description            *string `json:"description"`
	TimeLimit              *int    `json:"time_limit" validate:"omitempty,gt=0"`
	MaxAttempts            *int    `json:"max_attempts" validate:"omitempty,gt=0"`
	PassingScore           *int    `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	RandomizeQuestions     *bool   `json:"randomize_questions"`
	ShowResultsImmediately *bool   `json:"show_results_immediately"`
	AllowReview            *bool   `json:"allow_review"`
}

type SubmitRequest struct {
	StartedAt *time.Time `json:"started_at"`
	Responses []Answer   `json:"responses" validate:"required,dive"`
}

type QuizSummary struct {
	models.Quiz
	TotalQuestions int64 `json:"total_questions"`
	TotalPoints    int64 `json:"total_points"`
}

type QuestionView struct {
	models.Question
	Options []models.QuestionOption `json:"options"`
}

type QuizDetail struct {
	models.Quiz
	ModuleTitle  string         `json:"module_title"`
	Questions    []QuestionView `json:"questions"`
	UserAttempts int64          `json:"user_attempts"`
	BestScore    *float64       `json:"best_score"`
	CanAttempt   bool           `json:"can_attempt"`
}

type ResponseView struct {
	models.QuizResponse
	QuestionText       string   `json:"question_text"`
	SelectedOptionText string   `json:"selected_option_text"`
	CorrectAnswer      []string `json:"correct_answer,omitempty"`
	Explanation        string   `json:"explanation,omitempty"`
}

type AttemptView struct {
	models.QuizAttempt
	UserName  string         `json:"user_name"`
	QuizTitle string         `json:"quiz_title"`
	Responses []ResponseView `json:"responses,omitempty"`
}

type Service struct {
	db     *gorm.DB
	events kfka.Publisher
	audit  audit.Recorder
	log    *logger.Logger
}

func NewService(db *gorm.DB, events kfka.Publisher, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, events: events, audit: rec, log: baseLog.With("service", "QuizService")}
}

// checkOptions enforces the option shape each question type needs.
func checkOptions(t models.QuestionType, opts []OptionRequest) error {
	correct := 0
	for _, o := range opts {
		if o.IsCorrect {
			correct++
		}
	}
	switch t {
	case models.MultipleChoice:
		if len(opts) < 2 {
			return apierr.Validation("Multiple choice questions must have at least 2 options")
		}
		if correct == 0 {
			return apierr.Validation("Multiple choice questions must have at least one correct option")
		}
	case models.TrueFalse:
		if len(opts) != 2 {
			return apierr.Validation("True/False questions must have exactly 2 options")
		}
		if correct != 1 {
			return apierr.Validation("True/False questions must have exactly one correct option")
		}
	default:
		if len(opts) > 0 {
			return apierr.Validation("Short answer and essay questions should not have options")
		}
	}
	return nil
}

// courseFor returns the course owning the module, 404 when the module is gone.
func (s *Service) courseFor(ctx context.Context, moduleID uint) (*models.Module, *models.Course, error) {
	db := s.db.WithContext(ctx)
	var m models.Module
	if err := db.Limit(1).Find(&m, moduleID).Error; err != nil {
		return nil, nil, err
	}
	if m.ID == 0 {
		return nil, nil, apierr.NotFound("Module not found")
	}
	var c models.Course
	if err := db.Limit(1).Find(&c, m.CourseID).Error; err != nil {
		return nil, nil, err
	}
	return &m, &c, nil
}

func (s *Service) find(ctx context.Context, id uint) (*models.Quiz, error) {
	var q models.Quiz
	if err := s.db.WithContext(ctx).Limit(1).Find(&q, id).Error; err != nil {
		return nil, err
	}
	if q.ID == 0 {
		return nil, errQuizNotFound
	}
	return &q, nil
}

func (s *Service) managed(ctx context.Context, user models.User, quizID uint) (*models.Quiz, error) {
	q, err := s.find(ctx, quizID)
	if err != nil {
		return nil, err
	}
	_, c, err := s.courseFor(ctx, q.ModuleID)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, moduleID *uint, search string, p pagination.Params) (pagination.Page[QuizSummary], error) {
	q := s.db.WithContext(ctx).Model(&models.Quiz{})
	if moduleID != nil {
		q = q.Where("module_id = ?", *moduleID)
	}
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[QuizSummary]{}, err
	}
	var rows []models.Quiz
	if err := q.Order("id").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[QuizSummary]{}, err
	}
	items := make([]QuizSummary, 0, len(rows))
	for _, quiz := range rows {
		sum := QuizSummary{Quiz: quiz}
		err := s.db.WithContext(ctx).Model(&models.Question{}).Where("quiz_id = ?", quiz.ID).
			Select("COUNT(*) AS total_questions, COALESCE(SUM(points), 0) AS total_points").
			Row().Scan(&sum.TotalQuestions, &sum.TotalPoints)
		if err != nil {
			return pagination.Page[QuizSummary]{}, err
		}
		items = append(items, sum)
	}
	return pagination.New(items, total, p), nil
}

func (s *Service) questions(ctx context.Context, quizID uint, reveal bool) ([]QuestionView, error) {
	db := s.db.WithContext(ctx)
	var qs []models.Question
	if err := db.Where("quiz_id = ?", quizID).Order("order_index, id").Find(&qs).Error; err != nil {
		return nil, err
	}
	out := make([]QuestionView, 0, len(qs))
	for _, q := range qs {
		var opts []models.QuestionOption
		if err := db.Where("question_id = ?", q.ID).Order("order_index, id").Find(&opts).Error; err != nil {
			return nil, err
		}
		if !reveal {
			for i := range opts {
				opts[i].IsCorrect = false
			}
		}
		if opts == nil {
			opts = []models.QuestionOption{}
		}
		out = append(out, QuestionView{Question: q, Options: opts})
	}
	return out, nil
}

// Get hides correct options from learners.
func (s *Service) Get(ctx context.Context, id uint, viewer models.User) (*QuizDetail, error) {
	q, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &QuizDetail{Quiz: *q, ModuleTitle: "Unknown"}
	var m models.Module
	if err := s.db.WithContext(ctx).Limit(1).Find(&m, q.ModuleID).Error; err != nil {
		return nil, err
	}
	if m.ID != 0 {
		detail.ModuleTitle = m.Title
	}
	if detail.Questions, err = s.questions(ctx, q.ID, viewer.Role != models.RoleEmployee); err != nil {
		return nil, err
	}
	var attempts []models.QuizAttempt
	if err := s.db.WithContext(ctx).Where("quiz_id = ? AND user_id = ?", q.ID, viewer.ID).Find(&attempts).Error; err != nil {
		return nil, err
	}
	detail.UserAttempts = int64(len(attempts))
	for _, a := range attempts {
		if a.CompletedAt == nil {
			continue
		}
		if detail.BestScore == nil || a.Score > *detail.BestScore {
			score := a.Score
			detail.BestScore = &score
		}
	}
	detail.CanAttempt = detail.UserAttempts < int64(q.MaxAttempts)
	return detail, nil
}

func createQuestion(tx *gorm.DB, quizID uint, req QuestionRequest, order int) (*models.Question, error) {
	q := models.Question{
		QuizID:       quizID,
		QuestionText: req.QuestionText,
		QuestionType: req.QuestionType,
		Points:       models.DefaultPoints,
		OrderIndex:   order,
		Explanation:  req.Explanation,
	}
	if req.Points != nil {
		q.Points = *req.Points
	}
	if err := tx.Create(&q).Error; err != nil {
		return nil, err
	}
	for _, o := range req.Options {
		opt := models.QuestionOption{QuestionID: q.ID, OptionText: o.OptionText, IsCorrect: o.IsCorrect, OrderIndex: o.OrderIndex}
		if err := tx.Create(&opt).Error; err != nil {
			return nil, err
		}
	}
	return &q, nil
}

func (s *Service) Create(ctx context.Context, user models.User, req QuizRequest) (*QuizDetail, error) {
	_, c, err := s.courseFor(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	for _, qr := range req.Questions {
		if err := checkOptions(qr.QuestionType, qr.Options); err != nil {
			return nil, err
		}
	}
	quiz := models.Quiz{
		ModuleID:               req.ModuleID,
		Title:                  req.Title,
		Description:            req.Description,
		TimeLimit:              req.TimeLimit,
		MaxAttempts:            models.DefaultMaxAttempts,
		PassingScore:           models.DefaultPassingScore,
		RandomizeQuestions:     req.RandomizeQuestions,
		ShowResultsImmediately: true,
		AllowReview:            true,
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		quiz.PassingScore = *req.PassingScore
	}
	if req.ShowResultsImmediately != nil {
		quiz.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.AllowReview != nil {
		quiz.AllowReview = *req.AllowReview
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quiz).Error; err != nil {
			return err
		}
		for i, qr := range req.Questions {
			order := i
			if qr.OrderIndex != nil {
				order = *qr.OrderIndex
			}
			if _, err := createQuestion(tx, quiz.ID, qr, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionCreate, EntityType: "Quiz", EntityID: &quiz.ID,
		Details: map[string]interface{}{"module_id": quiz.ModuleID, "questions": len(req.Questions)}})
	return s.Get(ctx, quiz.ID, user)
}

func (s *Service) Update(ctx context.Context, user models.User, id uint, req QuizUpdate) (*QuizDetail, error) {
	q, err := s.managed(ctx, user, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TimeLimit != nil {
		updates["time_limit"] = *req.TimeLimit
	}
	if req.MaxAttempts != nil {
		updates["max_attempts"] = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		updates["passing_score"] = *req.PassingScore
	}
	if req.RandomizeQuestions != nil {
		updates["randomize_questions"] = *req.RandomizeQuestions
	}
	if req.ShowResultsImmediately != nil {
		updates["show_results_immediately"] = *req.ShowResultsImmediately
	}
	if req.AllowReview != nil {
		updates["allow_review"] = *req.AllowReview
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(q).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update quiz: %w", err)
		}
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionUpdate, EntityType: "Quiz", EntityID: &q.ID})
	return s.Get(ctx, id, user)
}

func (s *Service) Delete(ctx context.Context, user models.User, id uint) error {
	q, err := s.managed(ctx, user, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.QuizAttempt{}).Where("quiz_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Cannot delete quiz with existing attempts")
		}
		var questionIDs []uint
		if err := tx.Model(&models.Question{}).Where("quiz_id = ?", id).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.QuestionOption{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", questionIDs).Delete(&models.Question{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(q).Error
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionDelete, EntityType: "Quiz", EntityID: &id,
		Details: map[string]interface{}{"title": q.Title}})
	return nil
}

// AddQuestion appends after the quiz's last question.
func (s *Service) AddQuestion(ctx context.Context, user models.User, quizID uint, req QuestionRequest) (*QuestionView, error) {
	if _, err := s.managed(ctx, user, quizID); err != nil {
		return nil, err
	}
	if err := checkOptions(req.QuestionType, req.Options); err != nil {
		return nil, err
	}
	var q *models.Question
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max int
		if err := tx.Model(&models.Question{}).Where("quiz_id = ?", quizID).
			Select("COALESCE(MAX(order_index), 0)").Scan(&max).Error; err != nil {
			return err
		}
		var err error
		q, err = createQuestion(tx, quizID, req, max+1)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}
	var opts []models.QuestionOption
	if err := s.db.WithContext(ctx).Where("question_id = ?", q.ID).Order("order_index, id").Find(&opts).Error; err != nil {
		return nil, err
	}
	if opts == nil {
		opts = []models.QuestionOption{}
	}
	return &QuestionView{Question: *q, Options: opts}, nil
}

func (s *Service) question(ctx context.Context, user models.User, id uint) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).Limit(1).Find(&q, id).Error; err != nil {
		return nil, err
	}
	if q.ID == 0 {
		return nil, errQuestionNotFound
	}
	if _, err := s.managed(ctx, user, q.QuizID); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, user models.User, id uint, req QuestionUpdate) (*models.Question, error) {
	q, err := s.question(ctx, user, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.QuestionText != nil {
		updates["question_text"] = *req.QuestionText
	}
	if req.QuestionType != nil {
		updates["question_type"] = *req.QuestionType
	}
	if req.Points != nil {
		updates["points"] = *req.Points
	}
	if req.OrderIndex != nil {
		updates["order_index"] = *req.OrderIndex
	}
	if req.Explanation != nil {
		updates["explanation"] = *req.Explanation
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(q).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update question: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).First(q, id).Error; err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, user models.User, id uint) error {
	q, err := s.question(ctx, user, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", q.ID).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(q).Error
	})
}

func (s *Service) keys(tx *gorm.DB, quizID uint) (map[uint]Key, error) {
	var qs []models.Question
	if err := tx.Where("quiz_id = ?", quizID).Find(&qs).Error; err != nil {
		return nil, err
	}
	keys := make(map[uint]Key, len(qs))
	ids := make([]uint, 0, len(qs))
	for _, q := range qs {
		keys[q.ID] = Key{Type: q.QuestionType, Points: q.Points, Correct: map[uint]bool{}}
		ids = append(ids, q.ID)
	}
	if len(ids) == 0 {
		return keys, nil
	}
	var opts []models.QuestionOption
	if err := tx.Where("question_id IN ?", ids).Find(&opts).Error; err != nil {
		return nil, err
	}
	for _, o := range opts {
		keys[o.QuestionID].Correct[o.ID] = o.IsCorrect
	}
	return keys, nil
}

// Submit grades one attempt. The attempt number is taken inside the
// transaction and backed by a unique index, so concurrent submissions
// cannot push a learner past max_attempts.
func (s *Service) Submit(ctx context.Context, user models.User, quizID uint, req SubmitRequest) (*AttemptView, error) {
	quiz, err := s.find(ctx, quizID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	attempt := models.QuizAttempt{QuizID: quiz.ID, UserID: user.ID, StartedAt: now, CompletedAt: &now}
	if req.StartedAt != nil && !req.StartedAt.After(now) {
		attempt.StartedAt = *req.StartedAt
	}
	attempt.TimeSpent = int(now.Sub(attempt.StartedAt).Seconds())

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.QuizAttempt{}).Where("quiz_id = ? AND user_id = ?", quiz.ID, user.ID).Count(&n).Error; err != nil {
			return err
		}
		if n >= int64(quiz.MaxAttempts) {
			return apierr.BadRequest("Maximum attempts reached")
		}
		keys, err := s.keys(tx, quiz.ID)
		if err != nil {
			return err
		}
		res := Grade(keys, req.Responses, quiz.PassingScore)
		attempt.AttemptNumber = int(n) + 1
		attempt.TotalPoints, attempt.EarnedPoints = res.TotalPoints, res.EarnedPoints
		attempt.Score, attempt.IsPassed = res.Score, res.Passed
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}
		for i := range res.Responses {
			res.Responses[i].AttemptID = attempt.ID
		}
		if len(res.Responses) > 0 {
			return tx.Create(&res.Responses).Error
		}
		return nil
	})
	if err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.Conflict("Another attempt was submitted at the same time")
		}
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	kfka.Emit(ctx, s.events, s.log, kfka.Event{
		Type:      kfka.EventQuizGraded,
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.FullName(),
		QuizID:    quiz.ID,
		QuizTitle: quiz.Title,
		Score:     attempt.Score,
		Passed:    attempt.IsPassed,
	})
	return s.Attempt(ctx, user, attempt.ID)
}

func (s *Service) ListAttempts(ctx context.Context, quizID uint, userID *uint, p pagination.Params) (pagination.Page[AttemptView], error) {
	quiz, err := s.find(ctx, quizID)
	if err != nil {
		return pagination.Page[AttemptView]{}, err
	}
	q := s.db.WithContext(ctx).Model(&models.QuizAttempt{}).Where("quiz_id = ?", quizID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[AttemptView]{}, err
	}
	var rows []models.QuizAttempt
	if err := q.Order("started_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[AttemptView]{}, err
	}
	items := make([]AttemptView, 0, len(rows))
	for _, a := range rows {
		var u models.User
		if err := s.db.WithContext(ctx).Limit(1).Find(&u, a.UserID).Error; err != nil {
			return pagination.Page[AttemptView]{}, err
		}
		name := "Unknown"
		if u.ID != 0 {
			name = u.FullName()
		}
		items = append(items, AttemptView{QuizAttempt: a, UserName: name, QuizTitle: quiz.Title})
	}
	return pagination.New(items, total, p), nil
}

// Attempt returns an attempt with its graded responses. Learners see only
// their own attempts, and correct answers only when the quiz allows review.
func (s *Service) Attempt(ctx context.Context, viewer models.User, id uint) (*AttemptView, error) {
	db := s.db.WithContext(ctx)
	var a models.QuizAttempt
	if err := db.Limit(1).Find(&a, id).Error; err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, apierr.NotFound("Quiz attempt not found")
	}
	staff := viewer.Role != models.RoleEmployee
	if a.UserID != viewer.ID && !staff {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	var quiz models.Quiz
	if err := db.Limit(1).Find(&quiz, a.QuizID).Error; err != nil {
		return nil, err
	}
	var u models.User
	if err := db.Limit(1).Find(&u, a.UserID).Error; err != nil {
		return nil, err
	}
	view := &AttemptView{QuizAttempt: a, UserName: u.FullName(), QuizTitle: quiz.Title, Responses: []ResponseView{}}
	reveal := staff || quiz.AllowReview

	var responses []models.QuizResponse
	if err := db.Where("attempt_id = ?", a.ID).Order("id").Find(&responses).Error; err != nil {
		return nil, err
	}
	for _, r := range responses {
		rv := ResponseView{QuizResponse: r, SelectedOptionText: r.TextResponse}
		var q models.Question
		if err := db.Limit(1).Find(&q, r.QuestionID).Error; err != nil {
			return nil, err
		}
		rv.QuestionText = q.QuestionText
		var opts []models.QuestionOption
		if err := db.Where("question_id = ?", r.QuestionID).Order("order_index, id").Find(&opts).Error; err != nil {
			return nil, err
		}
		for _, o := range opts {
			if r.SelectedOptionID != nil && o.ID == *r.SelectedOptionID {
				rv.SelectedOptionText = o.OptionText
			}
			if reveal && o.IsCorrect {
				rv.CorrectAnswer = append(rv.CorrectAnswer, o.OptionText)
			}
		}
		if reveal {
			rv.Explanation = q.Explanation
		}
		view.Responses = append(view.Responses, rv)
	}
	return view, nil
}

package modules

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/search"
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

type indexer struct {
	search.Nop
	indexed []uint
	deleted []uint
}

func (i *indexer) IndexModule(_ context.Context, m models.Module) error {
	i.indexed = append(i.indexed, m.ID)
	return nil
}

func (i *indexer) DeleteModule(_ context.Context, id uint) error {
	i.deleted = append(i.deleted, id)
	return nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	events *publisher
	index  *indexer
	owner  models.User
	course models.Course
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	ev := &publisher{}
	idx := &indexer{}
	owner := testdb.User(t, db, "author", models.RoleResourcePersonnel)
	return &fixture{
		db:     db,
		svc:    NewService(db, idx, ev, audit.NewService(db, logger.Nop()), logger.Nop()),
		events: ev,
		index:  idx,
		owner:  owner,
		course: testdb.Course(t, db, owner.ID, "Forklift Safety"),
	}
}

func (f *fixture) create(t *testing.T, title string) *models.Module {
	t.Helper()
	m, err := f.svc.Create(context.Background(), f.owner, f.course.ID, ModuleRequest{Title: title, ContentType: models.ContentVideo})
	require.NoError(t, err)
	return m
}

func TestCreateAppendsAfterLastModule(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "Intro")
	second := f.create(t, "Controls")
	assert.Equal(t, 1, first.OrderIndex)
	assert.Equal(t, 2, second.OrderIndex)
	assert.True(t, first.IsMandatory)
	assert.JSONEq(t, `{}`, string(first.ContentData))

	at := 10
	pinned, err := f.svc.Create(context.Background(), f.owner, f.course.ID, ModuleRequest{Title: "Exam", ContentType: models.ContentQuiz, OrderIndex: &at})
	require.NoError(t, err)
	assert.Equal(t, 10, pinned.OrderIndex)
	assert.Equal(t, []uint{first.ID, second.ID, pinned.ID}, f.index.indexed)

	page, err := f.svc.List(context.Background(), f.course.ID, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Exam", page.Items[2].Title)
}

func TestCreateRequiresCourseManager(t *testing.T) {
	f := newFixture(t)
	other := testdb.User(t, f.db, "other", models.RoleResourcePersonnel)
	_, err := f.svc.Create(context.Background(), other, f.course.ID, ModuleRequest{Title: "x", ContentType: models.ContentVideo})
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))

	admin := testdb.User(t, f.db, "root", models.RoleAdmin)
	_, err = f.svc.Create(context.Background(), admin, f.course.ID, ModuleRequest{Title: "x", ContentType: models.ContentVideo})
	assert.NoError(t, err)

	_, err = f.svc.Create(context.Background(), admin, 999, ModuleRequest{Title: "x", ContentType: models.ContentVideo})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestCreateAnnouncesToActiveLearnersOfPublishedCourse(t *testing.T) {
	f := newFixture(t)
	active := testdb.User(t, f.db, "active", models.RoleEmployee)
	dropped := testdb.User(t, f.db, "dropped", models.RoleEmployee)
	testdb.Enroll(t, f.db, active.ID, f.course.ID)
	e := testdb.Enroll(t, f.db, dropped.ID, f.course.ID)
	require.NoError(t, f.db.Model(&e).Update("status", models.EnrollmentDropped).Error)

	f.create(t, "Draft only")
	assert.Empty(t, f.events.events)

	require.NoError(t, f.db.Model(&f.course).Update("status", models.CoursePublished).Error)
	m := f.create(t, "Live")
	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, kfka.EventModuleAdded, ev.Type)
	assert.Equal(t, active.ID, ev.UserID)
	assert.Equal(t, m.ID, ev.ModuleID)
	assert.Equal(t, "Live", ev.ModuleTitle)
	assert.Equal(t, "Forklift Safety", ev.CourseTitle)
}

func TestUpdateAppliesOnlyGivenFields(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Intro")
	title := "Introduction"
	mandatory := false
	got, err := f.svc.Update(context.Background(), f.owner, m.ID, ModuleUpdate{Title: &title, IsMandatory: &mandatory})
	require.NoError(t, err)
	assert.Equal(t, "Introduction", got.Title)
	assert.False(t, got.IsMandatory)
	assert.Equal(t, models.ContentVideo, got.ContentType)
	assert.Equal(t, 1, got.OrderIndex)

	_, err = f.svc.Update(context.Background(), f.owner, 404, ModuleUpdate{Title: &title})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestReorder(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	c := f.create(t, "C")

	rows, err := f.svc.Reorder(context.Background(), f.owner, f.course.ID, []uint{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{rows[0].Title, rows[1].Title, rows[2].Title})
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].OrderIndex, rows[1].OrderIndex, rows[2].OrderIndex})

	_, err = f.svc.Reorder(context.Background(), f.owner, f.course.ID, []uint{a.ID, b.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
	_, err = f.svc.Reorder(context.Background(), f.owner, f.course.ID, []uint{a.ID, b.ID, b.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestDeleteRemovesProgressAndDetachesDocuments(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Intro")
	keep := f.create(t, "Keep")
	learner := testdb.User(t, f.db, "learner", models.RoleEmployee)
	e := testdb.Enroll(t, f.db, learner.ID, f.course.ID)
	mp := models.ModuleProgress{EnrollmentID: e.ID, ModuleID: m.ID, Status: models.InProgress}
	require.NoError(t, f.db.Create(&mp).Error)
	require.NoError(t, f.db.Create(&models.ContentProgress{ModuleProgressID: mp.ID, ContentType: models.ContentVideo, Status: models.InProgress, LastAccessed: time.Now()}).Error)
	doc := models.Document{FileID: "f1", ModuleID: &m.ID, UploadedBy: f.owner.ID, FileName: "a.pdf", Category: models.FileDocument, ObjectPath: "uploads/document/f1.pdf"}
	require.NoError(t, f.db.Create(&doc).Error)
	quiz := models.Quiz{ModuleID: m.ID, Title: "Check", MaxAttempts: 3, PassingScore: 70}
	require.NoError(t, f.db.Create(&quiz).Error)
	q := models.Question{QuizID: quiz.ID, QuestionText: "?", QuestionType: models.TrueFalse, Points: 1}
	require.NoError(t, f.db.Create(&q).Error)
	require.NoError(t, f.db.Create(&models.QuestionOption{QuestionID: q.ID, OptionText: "True", IsCorrect: true}).Error)

	require.NoError(t, f.svc.Delete(context.Background(), f.owner, m.ID))

	var n int64
	f.db.Model(&models.Module{}).Where("id = ?", m.ID).Count(&n)
	assert.Zero(t, n)
	f.db.Model(&models.ModuleProgress{}).Count(&n)
	assert.Zero(t, n)
	f.db.Model(&models.ContentProgress{}).Count(&n)
	assert.Zero(t, n)
	f.db.Model(&models.Quiz{}).Count(&n)
	assert.Zero(t, n)
	f.db.Model(&models.QuestionOption{}).Count(&n)
	assert.Zero(t, n)
	f.db.Model(&models.Module{}).Where("id = ?", keep.ID).Count(&n)
	assert.EqualValues(t, 1, n)

	var reloaded models.Document
	require.NoError(t, f.db.First(&reloaded, doc.ID).Error)
	assert.Nil(t, reloaded.ModuleID)
	assert.Equal(t, []uint{m.ID}, f.index.deleted)
}

func TestDeleteRefusedWithQuizAttempts(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Intro")
	learner := testdb.User(t, f.db, "learner", models.RoleEmployee)
	quiz := models.Quiz{ModuleID: m.ID, Title: "Check", MaxAttempts: 3, PassingScore: 70}
	require.NoError(t, f.db.Create(&quiz).Error)
	require.NoError(t, f.db.Create(&models.QuizAttempt{QuizID: quiz.ID, UserID: learner.ID, AttemptNumber: 1, StartedAt: time.Now()}).Error)

	err := f.svc.Delete(context.Background(), f.owner, m.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
	var n int64
	f.db.Model(&models.Module{}).Where("id = ?", m.ID).Count(&n)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, f.index.deleted)
}

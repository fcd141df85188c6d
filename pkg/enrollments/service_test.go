package enrollments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
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
	hr      models.User
	learner models.User
	course  models.Course
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	ev := &publisher{}
	hr := testdb.User(t, db, "hr", models.RoleHR)
	return &fixture{
		db:      db,
		svc:     NewService(db, ev, audit.NewService(db, logger.Nop()), logger.Nop()),
		events:  ev,
		hr:      hr,
		learner: testdb.User(t, db, "learner", models.RoleEmployee),
		course:  testdb.Course(t, db, hr.ID, "Fire Drill"),
	}
}

func TestEnrollAssignsAndNotifies(t *testing.T) {
	f := newFixture(t)
	due := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	view, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID, DueDate: &due}, &f.hr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentEnrolled, view.Status)
	assert.Zero(t, view.ProgressPercentage)
	assert.Equal(t, "Fire Drill", view.CourseTitle)
	assert.Equal(t, "learner", view.UserName)
	require.NotNil(t, view.AssignedBy)
	assert.Equal(t, f.hr.ID, *view.AssignedBy)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, kfka.EventEnrollmentAssigned, ev.Type)
	assert.Equal(t, "learner@example.com", ev.Email)
	require.NotNil(t, ev.DueDate)
	assert.True(t, due.Equal(*ev.DueDate))
}

func TestEnrollTwiceConflictsAndLeavesRowUnchanged(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID}, &f.hr.ID)
	require.NoError(t, err)

	due := time.Now().Add(time.Hour)
	_, err = f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID, DueDate: &due}, nil)
	assert.Equal(t, http.StatusConflict, apierr.StatusOf(err))

	var rows []models.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", f.learner.ID, f.course.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Nil(t, rows[0].DueDate)
	require.NotNil(t, rows[0].AssignedBy)
	assert.Equal(t, f.hr.ID, *rows[0].AssignedBy)
	assert.Len(t, f.events.events, 1)
}

func TestUniqueIndexBacksDuplicateCheck(t *testing.T) {
	f := newFixture(t)
	testdb.Enroll(t, f.db, f.learner.ID, f.course.ID)
	err := f.db.Create(&models.Enrollment{UserID: f.learner.ID, CourseID: f.course.ID, EnrolledAt: time.Now()}).Error
	assert.True(t, apierr.IsDuplicate(err))
}

func TestEnrollMissingUserOrCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: 999, CourseID: f.course.ID}, nil)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
	_, err = f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: 999}, nil)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestBulkEnrollTalliesFailures(t *testing.T) {
	f := newFixture(t)
	other := testdb.User(t, f.db, "other", models.RoleEmployee)
	testdb.Enroll(t, f.db, other.ID, f.course.ID)

	res := f.svc.BulkEnroll(context.Background(), BulkRequest{UserIDs: []uint{f.learner.ID, other.ID, 404}, CourseID: f.course.ID}, &f.hr.ID)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []BulkFailure{
		{UserID: other.ID, Error: "User is already enrolled in this course"},
		{UserID: 404, Error: "User not found"},
	}, res.Failures)
}

func TestDropAndReenroll(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID}, &f.hr.ID)
	require.NoError(t, err)

	dropped, err := f.svc.Drop(context.Background(), f.hr, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentDropped, dropped.Status)

	_, err = f.svc.Drop(context.Background(), f.hr, view.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	again, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID}, &f.hr.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID)
	assert.Equal(t, models.EnrollmentEnrolled, again.Status)
}

func TestReenrollKeepsDerivedStatus(t *testing.T) {
	f := newFixture(t)
	m1 := testdb.Module(t, f.db, f.course.ID, "Exits", models.ContentVideo, 1)
	testdb.Module(t, f.db, f.course.ID, "Alarms", models.ContentVideo, 2)
	view, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID}, &f.hr.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.ModuleProgress{EnrollmentID: view.ID, ModuleID: m1.ID, Status: models.Completed}).Error)
	require.NoError(t, f.db.Model(&models.Enrollment{}).Where("id = ?", view.ID).
		Updates(map[string]interface{}{"progress_percentage": 50, "status": models.EnrollmentInProgress}).Error)

	_, err = f.svc.Drop(context.Background(), f.hr, view.ID)
	require.NoError(t, err)
	again, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: f.learner.ID, CourseID: f.course.ID}, &f.hr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentInProgress, again.Status)
	assert.InDelta(t, 50, again.ProgressPercentage, 0.001)

	var stored models.Enrollment
	require.NoError(t, f.db.First(&stored, view.ID).Error)
	assert.Equal(t, models.EnrollmentInProgress, stored.Status)
	assert.InDelta(t, 50, stored.ProgressPercentage, 0.001)
}

func TestDropRejectsCompleted(t *testing.T) {
	f := newFixture(t)
	e := testdb.Enroll(t, f.db, f.learner.ID, f.course.ID)
	require.NoError(t, f.db.Model(&e).Update("status", models.EnrollmentCompleted).Error)
	_, err := f.svc.Drop(context.Background(), f.hr, e.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestEnrollSelfNeedsPublishedCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EnrollSelf(context.Background(), f.learner, f.course.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	require.NoError(t, f.db.Model(&f.course).Update("status", models.CoursePublished).Error)
	view, err := f.svc.EnrollSelf(context.Background(), f.learner, f.course.ID)
	require.NoError(t, err)
	assert.Nil(t, view.AssignedBy)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	other := testdb.User(t, f.db, "other", models.RoleEmployee)
	testdb.Enroll(t, f.db, f.learner.ID, f.course.ID)
	testdb.Enroll(t, f.db, other.ID, f.course.ID)

	page, err := f.svc.List(context.Background(), ListFilter{CourseID: &f.course.ID}, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = f.svc.List(context.Background(), ListFilter{UserID: &other.ID}, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "other", page.Items[0].UserName)
}

func TestHandlerEnrollMe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.course).Update("status", models.CoursePublished).Error)
	h := NewHandler(f.svc, logger.Nop())

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/courses/x/enroll-me", nil)
		req = mux.SetURLVars(req, map[string]string{"course_id": "1"})
		req = req.WithContext(middleware.WithUser(req.Context(), f.learner))
		rec := httptest.NewRecorder()
		h.EnrollMe(rec, req)
		return rec
	}
	rec := call()
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "enrolled", body["status"])

	rec = call()
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"detail":"User is already enrolled in this course"}`, rec.Body.String())
}

func TestHandlerBulkValidation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logger.Nop())
	req := httptest.NewRequest(http.MethodPost, "/enrollments/bulk", strings.NewReader(`{"user_ids":[],"course_id":1}`))
	req = req.WithContext(middleware.WithUser(req.Context(), f.hr))
	rec := httptest.NewRecorder()
	h.BulkEnroll(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

package reviews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/testdb"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	admin    models.User
	author   models.User
	reviewer models.User
	learner  models.User
	course   models.Course
}

func newFixture(t *testing.T) fixture {
	db := testdb.Open(t)
	f := fixture{
		db:       db,
		svc:      NewService(db, audit.NewService(db, logger.Nop()), logger.Nop()),
		admin:    testdb.User(t, db, "admin", models.RoleAdmin),
		author:   testdb.User(t, db, "author", models.RoleResourcePersonnel),
		reviewer: testdb.User(t, db, "reviewer", models.RoleHR),
		learner:  testdb.User(t, db, "learner", models.RoleEmployee),
	}
	f.course = testdb.Course(t, db, f.author.ID, "Onboarding")
	return f
}

func (f fixture) courseStatus(t *testing.T) models.CourseStatus {
	t.Helper()
	var c models.Course
	require.NoError(t, f.db.First(&c, f.course.ID).Error)
	return c.Status
}

func TestApprovalMovesCourseToApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rev, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, rev.Status)
	assert.Equal(t, "author", rev.SubmitterName)
	require.NotNil(t, rev.CourseID)
	assert.Equal(t, f.course.ID, *rev.CourseID)
	assert.Equal(t, models.CourseUnderReview, f.courseStatus(t))

	_, err = f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	assigned, err := f.svc.Assign(ctx, f.admin, rev.ID, AssignRequest{ReviewerID: f.reviewer.ID})
	require.NoError(t, err)
	assert.Equal(t, "reviewer", assigned.ReviewerName)

	approved := models.ReviewApproved
	notes := "looks good"
	out, err := f.svc.Update(ctx, f.reviewer, rev.ID, UpdateRequest{Status: &approved, ReviewNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, out.Status)
	assert.Equal(t, "looks good", out.ReviewNotes)
	assert.NotNil(t, out.ReviewedAt)
	assert.Equal(t, models.CourseApproved, f.courseStatus(t))
}

func TestRevisionSendsCourseBackToDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rev, err := f.svc.Create(ctx, f.admin, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID, ReviewerID: &f.reviewer.ID})
	require.NoError(t, err)

	revise := models.ReviewNeedsRevision
	_, err = f.svc.Update(ctx, f.reviewer, rev.ID, UpdateRequest{Status: &revise})
	require.NoError(t, err)
	assert.Equal(t, models.CourseDraft, f.courseStatus(t))

	// with nothing pending the course can be submitted again
	_, err = f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CourseUnderReview, f.courseStatus(t))
}

func TestReviewLeavesPublishedCourseAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := testdb.Module(t, f.db, f.course.ID, "Welcome", models.ContentVideo, 1)
	require.NoError(t, f.db.Model(&f.course).Update("status", models.CoursePublished).Error)

	_, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	rev, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewVideo, ContentID: m.ID})
	require.NoError(t, err)
	rejected := models.ReviewRejected
	_, err = f.svc.Update(ctx, f.admin, rev.ID, UpdateRequest{Status: &rejected})
	require.NoError(t, err)
	assert.Equal(t, models.CoursePublished, f.courseStatus(t))
}

func TestCreateResolvesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testdb.Module(t, f.db, f.course.ID, "Handbook", models.ContentDocument, 1)
	quizModule := testdb.Module(t, f.db, f.course.ID, "Check", models.ContentQuiz, 2)
	quiz := models.Quiz{ModuleID: quizModule.ID, Title: "Check", MaxAttempts: 1, PassingScore: 70}
	require.NoError(t, f.db.Create(&quiz).Error)
	file := models.Document{FileID: "f-1", ModuleID: &doc.ID, UploadedBy: f.author.ID, FileName: "h.pdf", Category: models.FileDocument, ObjectPath: "documents/f-1.pdf", Size: 10}
	require.NoError(t, f.db.Create(&file).Error)

	for _, c := range []CreateRequest{
		{ContentType: models.ReviewModule, ContentID: doc.ID},
		{ContentType: models.ReviewQuiz, ContentID: quiz.ID},
		{ContentType: models.ReviewDocument, ContentID: file.ID},
	} {
		rev, err := f.svc.Create(ctx, f.author, c)
		require.NoError(t, err, c.ContentType)
		require.NotNil(t, rev.CourseID)
		assert.Equal(t, f.course.ID, *rev.CourseID, c.ContentType)
	}
	// non-course reviews do not touch the course
	assert.Equal(t, models.CourseDraft, f.courseStatus(t))

	_, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewVideo, ContentID: doc.ID})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
	_, err = f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewQuiz, ContentID: 999})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	outsider := testdb.User(t, f.db, "outsider", models.RoleResourcePersonnel)
	_, err = f.svc.Create(ctx, outsider, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
	_, err = f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID, ReviewerID: &f.learner.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestOnlyAssignedReviewerOrAdminDecides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rev, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	require.NoError(t, err)

	approved := models.ReviewApproved
	_, err = f.svc.Update(ctx, f.reviewer, rev.ID, UpdateRequest{Status: &approved})
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
	_, err = f.svc.Update(ctx, f.author, rev.ID, UpdateRequest{Status: &approved})
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
	_, err = f.svc.Update(ctx, f.admin, 999, UpdateRequest{Status: &approved})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
	assert.Equal(t, models.CourseUnderReview, f.courseStatus(t))

	_, err = f.svc.Assign(ctx, f.admin, rev.ID, AssignRequest{ReviewerID: f.learner.ID})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
	_, err = f.svc.Assign(ctx, f.admin, 999, AssignRequest{ReviewerID: f.reviewer.ID})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestDeletePendingCourseReviewRestoresDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rev, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(f.svc.Delete(ctx, f.reviewer, rev.ID)))
	require.NoError(t, f.svc.Delete(ctx, f.author, rev.ID))
	assert.Equal(t, models.CourseDraft, f.courseStatus(t))
	_, err = f.svc.Get(ctx, rev.ID)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestListStatsAndBulk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testdb.Course(t, f.db, f.author.ID, "Security")
	m := testdb.Module(t, f.db, f.course.ID, "Intro", models.ContentDocument, 1)

	a, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID, ReviewerID: &f.reviewer.ID})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: other.ID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewModule, ContentID: m.ID, ReviewerID: &f.reviewer.ID})
	require.NoError(t, err)

	res, err := f.svc.BulkAction(ctx, f.reviewer, BulkRequest{ReviewIDs: []uint{a.ID, b.ID}, Action: models.ReviewApproved})
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, res.Updated)
	assert.Equal(t, []uint{b.ID}, res.Skipped)
	assert.Equal(t, models.CourseApproved, f.courseStatus(t))

	_, err = f.svc.BulkAction(ctx, f.admin, BulkRequest{ReviewIDs: []uint{998, 999}, Action: models.ReviewApproved})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	p := pagination.Params{Page: 1, Limit: 10}
	page, err := f.svc.List(ctx, Filter{PendingOnly: true}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	page, err = f.svc.List(ctx, Filter{ReviewerID: &f.reviewer.ID}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	page, err = f.svc.List(ctx, Filter{ContentType: models.ReviewModule}, p)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 2, st.Pending)
	assert.EqualValues(t, 1, st.Approved)
	assert.Equal(t, map[string]int64{"course": 2, "module": 1}, st.ByType)
}

func TestHandlerMyReviewsIgnoresQueryReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.author, CreateRequest{ContentType: models.ReviewCourse, ContentID: f.course.ID, ReviewerID: &f.reviewer.ID})
	require.NoError(t, err)
	h := NewHandler(f.svc, logger.Nop())

	req := httptest.NewRequest(http.MethodGet, "/reviews/my-reviews?reviewer_id=1", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), f.reviewer))
	rec := httptest.NewRecorder()
	h.MyReviews(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"total":1`), rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"content_type":"lesson","content_id":1}`))
	req = req.WithContext(middleware.WithUser(req.Context(), f.author))
	rec = httptest.NewRecorder()
	h.CreateReview(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

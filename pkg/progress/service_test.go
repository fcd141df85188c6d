package progress

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/testdb"
)

type recorder struct {
	mu     sync.Mutex
	events []kfka.Event
}

func (r *recorder) Publish(_ context.Context, ev kfka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	events *recorder
	user   models.User
	course models.Course
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	ev := &recorder{}
	admin := testdb.User(t, db, "admin", models.RoleAdmin)
	return &fixture{
		db:     db,
		svc:    NewService(db, ev, logger.Nop()),
		events: ev,
		user:   testdb.User(t, db, "learner", models.RoleEmployee),
		course: testdb.Course(t, db, admin.ID, "Safety 101"),
	}
}

func (f *fixture) record(t *testing.T, module models.Module, ct models.ContentType, status models.ProgressStatus, pct float64, spent int) *models.ContentProgress {
	t.Helper()
	row, err := f.svc.RecordContentProgress(context.Background(), f.user.ID, UpdateRequest{
		CourseID:           f.course.ID,
		ModuleID:           module.ID,
		ContentType:        ct,
		Status:             status,
		ProgressPercentage: pct,
		TimeSpent:          spent,
	})
	require.NoError(t, err)
	return row
}

func (f *fixture) enrollment(t *testing.T) models.Enrollment {
	t.Helper()
	var e models.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", f.user.ID, f.course.ID).First(&e).Error)
	return e
}

func (f *fixture) moduleProgress(t *testing.T, moduleID uint) models.ModuleProgress {
	t.Helper()
	var mp models.ModuleProgress
	require.NoError(t, f.db.Where("module_id = ?", moduleID).First(&mp).Error)
	return mp
}

func TestTwoModuleCourseCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := testdb.Module(t, f.db, f.course.ID, "Intro video", models.ContentVideo, 1)
	m2 := testdb.Module(t, f.db, f.course.ID, "Final quiz", models.ContentQuiz, 2)
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)

	f.record(t, m1, models.ContentVideo, models.Completed, 100, 60)
	view, err := f.svc.CourseProgress(ctx, f.user.ID, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, view.ProgressPercentage)
	assert.Equal(t, models.EnrollmentInProgress, view.EnrollmentStatus)
	assert.EqualValues(t, 2, view.TotalModules)
	assert.EqualValues(t, 1, view.CompletedModules)
	assert.NotNil(t, view.StartedAt)
	assert.Nil(t, view.CompletedAt)
	assert.Empty(t, f.events.events)

	f.record(t, m2, models.ContentQuiz, models.Completed, 100, 30)
	view, err = f.svc.CourseProgress(ctx, f.user.ID, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, view.ProgressPercentage)
	assert.Equal(t, models.EnrollmentCompleted, view.EnrollmentStatus)
	assert.NotNil(t, view.CompletedAt)
	assert.EqualValues(t, 90, view.TotalTimeSpent)

	enr := f.enrollment(t)
	assert.Equal(t, 100.0, enr.ProgressPercentage)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, kfka.EventCourseCompleted, f.events.events[0].Type)
	assert.Equal(t, "Safety 101", f.events.events[0].CourseTitle)
	assert.Equal(t, f.user.Email, f.events.events[0].Email)

	f.record(t, m2, models.ContentQuiz, models.Completed, 100, 5)
	assert.Len(t, f.events.events, 1, "completion is announced once")
}

func TestContentProgressOverwritesStatusAndAccumulatesTime(t *testing.T) {
	f := newFixture(t)
	m := testdb.Module(t, f.db, f.course.ID, "Video", models.ContentVideo, 1)
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)

	first := f.record(t, m, models.ContentVideo, models.InProgress, 80, 40)
	assert.Equal(t, 40, first.TimeSpent)

	second := f.record(t, m, models.ContentVideo, models.InProgress, 30, 25)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 30.0, second.ProgressPercentage, "latest write wins")
	assert.Equal(t, 65, second.TimeSpent)

	var n int64
	f.db.Model(&models.ContentProgress{}).Count(&n)
	assert.EqualValues(t, 1, n)
	f.db.Model(&models.ModuleProgress{}).Count(&n)
	assert.EqualValues(t, 1, n)

	mp := f.moduleProgress(t, m.ID)
	assert.Equal(t, models.NotStarted, mp.Status)
	assert.Equal(t, 65, mp.TimeSpent)
	assert.NotNil(t, mp.StartedAt)
}

func TestModuleCompletionFollowsContentRows(t *testing.T) {
	f := newFixture(t)
	m := testdb.Module(t, f.db, f.course.ID, "Mixed", models.ContentInteractive, 1)
	other := testdb.Module(t, f.db, f.course.ID, "Other", models.ContentDocument, 2)
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)

	f.record(t, m, models.ContentVideo, models.Completed, 100, 0)
	mp := f.moduleProgress(t, m.ID)
	assert.Equal(t, models.Completed, mp.Status)
	require.NotNil(t, mp.CompletedAt)
	stamped := *mp.CompletedAt

	f.record(t, other, models.ContentDocument, models.InProgress, 10, 0)
	mp = f.moduleProgress(t, m.ID)
	assert.Equal(t, models.Completed, mp.Status, "other modules do not touch this one")
	assert.True(t, mp.CompletedAt.Equal(stamped))

	f.record(t, m, models.ContentDocument, models.InProgress, 50, 0)
	mp = f.moduleProgress(t, m.ID)
	assert.Equal(t, models.InProgress, mp.Status)
	assert.Nil(t, mp.CompletedAt)

	f.record(t, m, models.ContentDocument, models.Completed, 100, 0)
	assert.Equal(t, models.Completed, f.moduleProgress(t, m.ID).Status)
}

func TestRandomSequencesKeepRollupConsistent(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))
	modules := make([]models.Module, 4)
	for i := range modules {
		modules[i] = testdb.Module(t, f.db, f.course.ID, "m", models.ContentVideo, i+1)
	}
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)

	types := []models.ContentType{models.ContentVideo, models.ContentDocument, models.ContentQuiz}
	statuses := []models.ProgressStatus{models.NotStarted, models.InProgress, models.Completed}
	state := map[uint]map[models.ContentType]models.ProgressStatus{}

	for i := 0; i < 60; i++ {
		m := modules[rng.Intn(len(modules))]
		ct := types[rng.Intn(len(types))]
		st := statuses[rng.Intn(len(statuses))]
		f.record(t, m, ct, st, float64(rng.Intn(101)), rng.Intn(10))
		if state[m.ID] == nil {
			state[m.ID] = map[models.ContentType]models.ProgressStatus{}
		}
		state[m.ID][ct] = st

		completedModules := 0
		for _, mod := range modules {
			rows, ok := state[mod.ID]
			if !ok {
				continue
			}
			all := true
			for _, s := range rows {
				all = all && s == models.Completed
			}
			mp := f.moduleProgress(t, mod.ID)
			assert.Equal(t, all, mp.Status == models.Completed, "module %d after step %d", mod.ID, i)
			if all {
				completedModules++
			}
		}
		enr := f.enrollment(t)
		assert.InDelta(t, 100*float64(completedModules)/float64(len(modules)), enr.ProgressPercentage, 1e-9)
	}
}

func TestRecordRequiresEnrollment(t *testing.T) {
	f := newFixture(t)
	m := testdb.Module(t, f.db, f.course.ID, "Video", models.ContentVideo, 1)
	_, err := f.svc.RecordContentProgress(context.Background(), f.user.ID, UpdateRequest{
		CourseID: f.course.ID, ModuleID: m.ID, ContentType: models.ContentVideo, Status: models.InProgress,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
	assert.Contains(t, err.Error(), "User not enrolled in this course")
}

func TestRecordRejectsForeignModuleAndDroppedEnrollment(t *testing.T) {
	f := newFixture(t)
	otherCourse := testdb.Course(t, f.db, f.user.ID, "Other")
	foreign := testdb.Module(t, f.db, otherCourse.ID, "Elsewhere", models.ContentVideo, 1)
	enr := testdb.Enroll(t, f.db, f.user.ID, f.course.ID)
	ctx := context.Background()

	_, err := f.svc.RecordContentProgress(ctx, f.user.ID, UpdateRequest{
		CourseID: f.course.ID, ModuleID: foreign.ID, ContentType: models.ContentVideo, Status: models.Completed,
	})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	m := testdb.Module(t, f.db, f.course.ID, "Own", models.ContentVideo, 1)
	require.NoError(t, f.db.Model(&enr).Update("status", models.EnrollmentDropped).Error)
	_, err = f.svc.RecordContentProgress(ctx, f.user.ID, UpdateRequest{
		CourseID: f.course.ID, ModuleID: m.ID, ContentType: models.ContentVideo, Status: models.Completed,
	})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestDeletedModuleIsNotCounted(t *testing.T) {
	f := newFixture(t)
	m1 := testdb.Module(t, f.db, f.course.ID, "Keep", models.ContentVideo, 1)
	m2 := testdb.Module(t, f.db, f.course.ID, "Drop", models.ContentVideo, 2)
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)

	f.record(t, m2, models.ContentVideo, models.Completed, 100, 0)
	require.NoError(t, f.db.Delete(&models.Module{}, m2.ID).Error)

	view, err := f.svc.CourseProgress(context.Background(), f.user.ID, f.course.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.TotalModules)
	assert.EqualValues(t, 0, view.CompletedModules)
	assert.Equal(t, 0.0, view.ProgressPercentage)

	f.record(t, m1, models.ContentVideo, models.Completed, 100, 0)
	assert.Equal(t, models.EnrollmentCompleted, f.enrollment(t).Status)
}

func TestListUserProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListUserProgress(ctx, 9999, pagination.Params{Page: 1, Limit: 10})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	empty := testdb.Course(t, f.db, f.user.ID, "No modules")
	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)
	testdb.Enroll(t, f.db, f.user.ID, empty.ID)
	testdb.Module(t, f.db, f.course.ID, "Only", models.ContentVideo, 1)

	page, err := f.svc.ListUserProgress(ctx, f.user.ID, pagination.Params{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Items, 1)

	page, err = f.svc.ListUserProgress(ctx, f.user.ID, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	byCourse := map[uint]UserCourseProgress{}
	for _, it := range page.Items {
		byCourse[it.CourseID] = it
	}
	assert.Equal(t, 100.0, byCourse[empty.ID].ProgressPercentage)
	assert.Equal(t, 0.0, byCourse[f.course.ID].ProgressPercentage)
}

func TestModuleContentProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := testdb.Module(t, f.db, f.course.ID, "Video", models.ContentVideo, 1)

	_, err := f.svc.ModuleContentProgress(ctx, f.user.ID, m.ID)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	testdb.Enroll(t, f.db, f.user.ID, f.course.ID)
	rows, err := f.svc.ModuleContentProgress(ctx, f.user.ID, m.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	f.record(t, m, models.ContentVideo, models.InProgress, 20, 5)
	f.record(t, m, models.ContentDocument, models.Completed, 100, 5)
	rows, err = f.svc.ModuleContentProgress(ctx, f.user.ID, m.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

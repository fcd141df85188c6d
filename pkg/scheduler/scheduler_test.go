package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
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

func TestDueReminders(t *testing.T) {
	db := testdb.Open(t)
	hr := testdb.User(t, db, "hr", models.RoleHR)
	alice := testdb.User(t, db, "alice", models.RoleEmployee)
	bob := testdb.User(t, db, "bob", models.RoleEmployee)
	carol := testdb.User(t, db, "carol", models.RoleEmployee)
	course := testdb.Course(t, db, hr.ID, "Ethics")
	now := time.Now()

	soon := now.Add(48 * time.Hour)
	far := now.Add(10 * 24 * time.Hour)
	e1 := testdb.Enroll(t, db, alice.ID, course.ID)
	require.NoError(t, db.Model(&e1).Update("due_date", soon).Error)
	e2 := testdb.Enroll(t, db, bob.ID, course.ID)
	require.NoError(t, db.Model(&e2).Updates(map[string]interface{}{"due_date": soon, "status": models.EnrollmentCompleted}).Error)
	e3 := testdb.Enroll(t, db, carol.ID, course.ID)
	require.NoError(t, db.Model(&e3).Update("due_date", far).Error)

	pub := &recorder{}
	s := New(db, pub, logger.Nop())
	s.now = func() time.Time { return now }

	n, err := s.DueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, kfka.EventDueReminder, ev.Type)
	assert.Equal(t, alice.ID, ev.UserID)
	assert.Equal(t, "alice@example.com", ev.Email)
	assert.Equal(t, "Ethics", ev.CourseTitle)
	require.NotNil(t, ev.DueDate)
	assert.WithinDuration(t, soon, *ev.DueDate, time.Second)
}

func TestWebinarRemindersSentOnce(t *testing.T) {
	db := testdb.Open(t)
	hr := testdb.User(t, db, "hr", models.RoleHR)
	alice := testdb.User(t, db, "alice", models.RoleEmployee)
	now := time.Now()

	starting := models.Webinar{Title: "Town hall", ScheduledAt: now.Add(30 * time.Minute), Duration: 60, Status: models.WebinarScheduled, PresenterID: &hr.ID}
	later := models.Webinar{Title: "Next week", ScheduledAt: now.Add(7 * 24 * time.Hour), Duration: 60, Status: models.WebinarScheduled}
	require.NoError(t, db.Create(&starting).Error)
	require.NoError(t, db.Create(&later).Error)
	for _, w := range []models.Webinar{starting, later} {
		require.NoError(t, db.Create(&models.WebinarRegistration{WebinarID: w.ID, UserID: alice.ID, RegisteredAt: now}).Error)
	}

	pub := &recorder{}
	s := New(db, pub, logger.Nop())
	s.now = func() time.Time { return now }

	n, err := s.WebinarReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.events, 1)
	assert.Equal(t, kfka.EventWebinarReminder, pub.events[0].Type)
	assert.Equal(t, starting.ID, pub.events[0].WebinarID)
	assert.Equal(t, "Town hall", pub.events[0].WebinarTitle)

	n, err = s.WebinarReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, pub.events, 1)
}

func TestStartRejectsBadSpec(t *testing.T) {
	db := testdb.Open(t)
	s := New(db, &recorder{}, logger.Nop())
	assert.Error(t, s.Start("not a spec", "*/15 * * * *"))

	s = New(db, &recorder{}, logger.Nop())
	require.NoError(t, s.Start("0 9 * * *", "*/15 * * * *"))
	s.Stop()
}

package webinars

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/testdb"
)

func newFixture(t *testing.T) (*Service, models.User) {
	db := testdb.Open(t)
	hr := testdb.User(t, db, "hr", models.RoleHR)
	return NewService(db, audit.NewService(db, logger.Nop()), logger.Nop()), hr
}

func TestCreateDefaults(t *testing.T) {
	svc, hr := newFixture(t)
	w, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Onboarding Q&A", ScheduledAt: time.Now().Add(24 * time.Hour), Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, models.WebinarScheduled, w.Status)
	require.NotNil(t, w.PresenterID)
	assert.Equal(t, hr.ID, *w.PresenterID)

	missing := uint(99)
	_, err = svc.Create(context.Background(), hr, CreateRequest{Title: "x", ScheduledAt: time.Now(), Duration: 30, PresenterID: &missing})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestRegisterRules(t *testing.T) {
	svc, hr := newFixture(t)
	alice := testdb.User(t, svc.db, "alice", models.RoleEmployee)
	bob := testdb.User(t, svc.db, "bob", models.RoleEmployee)
	one := 1
	w, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Small room", ScheduledAt: time.Now().Add(time.Hour), Duration: 30, MaxParticipants: &one})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), 999, alice.ID)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	reg, err := svc.Register(context.Background(), w.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, reg.RegisteredAt.IsZero())

	_, err = svc.Register(context.Background(), w.ID, alice.ID)
	assert.EqualError(t, err, "User already registered for this webinar")

	_, err = svc.Register(context.Background(), w.ID, bob.ID)
	assert.EqualError(t, err, "Webinar is full")

	view, err := svc.Get(context.Background(), w.ID, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.RegisteredCount)
	assert.True(t, view.IsRegistered)

	regs, err := svc.Registrations(context.Background(), w.ID, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, regs.Items, 1)
	assert.Equal(t, "alice", regs.Items[0].UserName)

	require.NoError(t, svc.Unregister(context.Background(), w.ID, alice.ID))
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(svc.Unregister(context.Background(), w.ID, alice.ID)))
	_, err = svc.Register(context.Background(), w.ID, bob.ID)
	assert.NoError(t, err)
}

func TestCancelledWebinarClosed(t *testing.T) {
	svc, hr := newFixture(t)
	w, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Gone", ScheduledAt: time.Now().Add(time.Hour), Duration: 30, Status: models.WebinarCancelled})
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), w.ID, hr.ID)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestRescheduleClearsReminder(t *testing.T) {
	svc, hr := newFixture(t)
	w, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Move me", ScheduledAt: time.Now().Add(time.Hour), Duration: 30})
	require.NoError(t, err)
	reg, err := svc.Register(context.Background(), w.ID, hr.ID)
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(reg).Update("reminded_at", time.Now()).Error)

	title := "Moved"
	_, err = svc.Update(context.Background(), hr, w.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)
	var stored models.WebinarRegistration
	require.NoError(t, svc.db.First(&stored, reg.ID).Error)
	assert.NotNil(t, stored.RemindedAt)

	later := w.ScheduledAt.Add(48 * time.Hour)
	updated, err := svc.Update(context.Background(), hr, w.ID, UpdateRequest{ScheduledAt: &later})
	require.NoError(t, err)
	assert.Equal(t, "Moved", updated.Title)
	var moved models.WebinarRegistration
	require.NoError(t, svc.db.First(&moved, reg.ID).Error)
	assert.Nil(t, moved.RemindedAt)
}

func TestListAndDelete(t *testing.T) {
	svc, hr := newFixture(t)
	_, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Safety briefing", Description: "ladders", ScheduledAt: time.Now().Add(time.Hour), Duration: 30})
	require.NoError(t, err)
	w2, err := svc.Create(context.Background(), hr, CreateRequest{Title: "Payroll", ScheduledAt: time.Now().Add(2 * time.Hour), Duration: 30, Status: models.WebinarLive})
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), w2.ID, hr.ID)
	require.NoError(t, err)

	page, err := svc.List(context.Background(), "LADDER", "", pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	page, err = svc.List(context.Background(), "", string(models.WebinarLive), pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Payroll", page.Items[0].Title)

	require.NoError(t, svc.Delete(context.Background(), hr, w2.ID))
	var n int64
	svc.db.Model(&models.WebinarRegistration{}).Count(&n)
	assert.Zero(t, n)
	_, err = svc.Get(context.Background(), w2.ID, hr)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

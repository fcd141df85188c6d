package kfka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"lms-backend/pkg/logger"
)

type recordingHandler struct {
	got []Event
	err error
}

func (h *recordingHandler) Handle(_ context.Context, ev Event) error {
	h.got = append(h.got, ev)
	return h.err
}

func TestEmitStampsAndSwallowsErrors(t *testing.T) {
	h := &recordingHandler{err: errors.New("smtp down")}
	Emit(context.Background(), Direct{Handler: h}, logger.Nop(), Event{Type: EventCourseCompleted, UserID: 3})

	if assert.Len(t, h.got, 1) {
		assert.Equal(t, EventCourseCompleted, h.got[0].Type)
		assert.False(t, h.got[0].OccurredAt.IsZero())
	}
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, logger.Nop(), Event{Type: EventQuizGraded})
	})
}

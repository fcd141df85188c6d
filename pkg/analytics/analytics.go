package analytics

import (
	"net/http"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
	"lms-backend/pkg/validate"
)

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req EventRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	ev, err := h.svc.RecordEvent(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, d)
}

func rangeFrom(r *http.Request) (Range, error) {
	q := r.URL.Query()
	return ParseRange(q.Get("start_date"), q.Get("end_date"))
}

// UserAnalytics lets employees read only their own numbers.
func (h *Handler) UserAnalytics(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	userID, err := middleware.PathID(r, "user_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if userID != user.ID && user.Role == models.RoleEmployee {
		apierr.Write(w, h.log, apierr.Forbidden("Not enough permissions"))
		return
	}
	rng, err := rangeFrom(r)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	out, err := h.svc.UserAnalytics(r.Context(), userID, rng)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, out)
}

func (h *Handler) CourseAnalytics(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rng, err := rangeFrom(r)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	out, err := h.svc.CourseAnalytics(r.Context(), user, courseID, rng)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, out)
}

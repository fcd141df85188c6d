package progress

import (
	"net/http"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/validate"
)

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RecordContent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req UpdateRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	row, err := h.svc.RecordContentProgress(r.Context(), user.ID, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, row)
}

func (h *Handler) MyProgress(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	page, err := h.svc.ListUserProgress(r.Context(), user.ID, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) MyCourseProgress(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.CourseProgress(r.Context(), user.ID, courseID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, view)
}

// UserProgress lets staff read anyone's progress and learners read their own.
func (h *Handler) UserProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.target(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListUserProgress(r.Context(), userID, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) UserCourseProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.target(w, r)
	if !ok {
		return
	}
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.CourseProgress(r.Context(), userID, courseID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, view)
}

func (h *Handler) ModuleContent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	moduleID, err := middleware.PathID(r, "module_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rows, err := h.svc.ModuleContentProgress(r.Context(), user.ID, moduleID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, rows)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (uint, bool) {
	user, _ := middleware.GetUserFromContext(r)
	userID, err := middleware.PathID(r, "user_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return 0, false
	}
	if userID != user.ID && !middleware.HasRole(user, models.RoleAdmin, models.RoleHR, models.RoleResourcePersonnel) {
		apierr.Write(w, h.log, apierr.Forbidden("Not enough permissions"))
		return 0, false
	}
	return userID, true
}

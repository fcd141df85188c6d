package enrollments

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

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req EnrollRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.Enroll(r.Context(), req, &user.ID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, view)
}

func (h *Handler) BulkEnroll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req BulkRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, h.svc.BulkEnroll(r.Context(), req, &user.ID))
}

func (h *Handler) EnrollMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.EnrollSelf(r.Context(), user, courseID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, view)
}

// List shows learners only their own enrollments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	f := ListFilter{
		UserID:     middleware.QueryUint(r, "user_id"),
		CourseID:   middleware.QueryUint(r, "course_id"),
		Status:     r.URL.Query().Get("status"),
		AssignedBy: middleware.QueryUint(r, "assigned_by"),
	}
	if !middleware.HasRole(user, models.RoleAdmin, models.RoleHR, models.RoleResourcePersonnel) {
		f.UserID = &user.ID
	}
	page, err := h.svc.List(r.Context(), f, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if view.UserID != user.ID && !middleware.HasRole(user, models.RoleAdmin, models.RoleHR, models.RoleResourcePersonnel) {
		apierr.Write(w, h.log, apierr.Forbidden("Not enough permissions"))
		return
	}
	apierr.JSON(w, http.StatusOK, view)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req UpdateRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.Update(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, view)
}

func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	view, err := h.svc.Drop(r.Context(), user, id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, view)
}

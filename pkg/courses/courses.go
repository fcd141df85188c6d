package courses

import (
	"net/http"
	"strconv"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
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

func filterFromRequest(r *http.Request) ListFilter {
	q := r.URL.Query()
	f := ListFilter{
		CategoryID: middleware.QueryUint(r, "category_id"),
		CreatorID:  middleware.QueryUint(r, "creator_id"),
		Difficulty: q.Get("difficulty_level"),
		Status:     q.Get("status"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}
	if f.Difficulty == "" {
		f.Difficulty = q.Get("difficulty")
	}
	if v, err := strconv.ParseBool(q.Get("is_mandatory")); err == nil {
		f.IsMandatory = &v
	}
	return f
}

// GetAll shows learners only published courses.
func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	f := filterFromRequest(r)
	if user.Role == models.RoleEmployee {
		f.Status = string(models.CoursePublished)
	}
	page, err := h.svc.List(r.Context(), f, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

// MyCourses lists the courses the caller created.
func (h *Handler) MyCourses(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	f := ListFilter{CreatorID: &user.ID}
	page, err := h.svc.List(r.Context(), f, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	detail, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req CourseRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	detail, err := h.svc.Create(r.Context(), user, req, audit.ClientIP(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, detail)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req CourseUpdate
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	detail, err := h.svc.Update(r.Context(), user, id, req, audit.ClientIP(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	detail, err := h.svc.Publish(r.Context(), user, id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), user, id, audit.ClientIP(r)); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Course deleted successfully"))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, stats)
}

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListCategories(r.Context(), pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	cat, err := h.svc.CreateCategory(r.Context(), req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, cat)
}

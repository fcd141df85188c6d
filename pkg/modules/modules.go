package modules

import (
	"net/http"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
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

func (h *Handler) GetModules(w http.ResponseWriter, r *http.Request) {
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	page, err := h.svc.List(r.Context(), courseID, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) CreateModule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req ModuleRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	m, err := h.svc.Create(r.Context(), user, courseID, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, m)
}

func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, m)
}

func (h *Handler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req ModuleUpdate
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	m, err := h.svc.Update(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), user, id); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Module deleted successfully"))
}

func (h *Handler) ReorderModules(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req ReorderRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rows, err := h.svc.Reorder(r.Context(), user, courseID, req.ModuleIDs)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, rows)
}

package audit

import (
	"net/http"
	"strconv"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/pagination"
)

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		UserID:     middleware.QueryUint(r, "user_id"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
	}
	page, err := h.svc.List(r.Context(), f, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

// GetSummary takes ?days=, default 30.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	sum, err := h.svc.Summarize(r.Context(), days)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, sum)
}

func (h *Handler) GetLog(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	row, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, row)
}

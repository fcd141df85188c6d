package search

import (
	"net/http"
	"strings"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
)

type Handler struct {
	searcher Searcher
	log      *logger.Logger
}

func NewHandler(s Searcher, log *logger.Logger) *Handler {
	return &Handler{searcher: s, log: log}
}

// Courses handles ?q=...&deep=true. Deep also matches descriptions.
func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	results, err := h.searcher.SearchCourses(r.Context(), q, deep(r))
	if err != nil {
		h.log.Error("search courses", "q", q, "error", err)
		apierr.Write(w, h.log, apierr.New(http.StatusBadGateway, "Search is unavailable", err))
		return
	}
	apierr.JSON(w, http.StatusOK, results)
}

func (h *Handler) Modules(w http.ResponseWriter, r *http.Request) {
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	results, err := h.searcher.SearchModules(r.Context(), courseID, q, deep(r))
	if err != nil {
		h.log.Error("search modules", "course_id", courseID, "q", q, "error", err)
		apierr.Write(w, h.log, apierr.New(http.StatusBadGateway, "Search is unavailable", err))
		return
	}
	apierr.JSON(w, http.StatusOK, results)
}

func deep(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("deep"))
	return v == "1" || v == "true"
}

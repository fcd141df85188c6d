package notifications

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

func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req CreateRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	n, err := h.svc.Create(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, n)
}

// GetNotifications accepts ?unread_only=true.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	unread := r.URL.Query().Get("unread_only") == "true"
	page, err := h.svc.ListMine(r.Context(), user.ID, unread, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	n, err := h.svc.UnreadCount(r.Context(), user.ID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, map[string]int64{"unread_count": n})
}

func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	n, err := h.svc.Get(r.Context(), user.ID, id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, n)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	n, err := h.svc.MarkRead(r.Context(), user.ID, id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, n)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	if _, err := h.svc.MarkAllRead(r.Context(), user.ID); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("All notifications marked as read"))
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), user.ID, id); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Notification deleted successfully"))
}

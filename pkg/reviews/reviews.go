package reviews

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

func filterFrom(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		ContentType: models.ReviewContent(q.Get("content_type")),
		Status:      models.ReviewStatus(q.Get("status")),
		ReviewerID:  middleware.QueryUint(r, "reviewer_id"),
		SubmitterID: middleware.QueryUint(r, "submitter_id"),
		PendingOnly: q.Get("pending_only") == "true",
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f Filter) {
	page, err := h.svc.List(r.Context(), f, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) GetReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, filterFrom(r))
}

func (h *Handler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	f := filterFrom(r)
	f.SubmitterID, f.ReviewerID = &user.ID, nil
	h.list(w, r, f)
}

func (h *Handler) MyReviews(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	f := filterFrom(r)
	f.ReviewerID, f.SubmitterID = &user.ID, nil
	h.list(w, r, f)
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req CreateRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rev, err := h.svc.Create(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, rev)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rev, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, rev)
}

func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
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
	rev, err := h.svc.Update(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, rev)
}

func (h *Handler) AssignReview(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req AssignRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	rev, err := h.svc.Assign(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, rev)
}

func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
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
	apierr.JSON(w, http.StatusOK, apierr.OK("Review deleted successfully"))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, st)
}

func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req BulkRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	res, err := h.svc.BulkAction(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, res)
}

package certificates

import (
	"net/http"

	"github.com/gorilla/mux"

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

// GetCertificates lets learners list only their own certificates.
func (h *Handler) GetCertificates(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	userID := middleware.QueryUint(r, "user_id")
	if user.Role == models.RoleEmployee {
		userID = &user.ID
	}
	page, err := h.svc.List(r.Context(), userID, middleware.QueryUint(r, "course_id"), pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) UserCertificates(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.svc.List(r.Context(), &userID, nil, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) CourseCertificates(w http.ResponseWriter, r *http.Request) {
	courseID, err := middleware.PathID(r, "course_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	page, err := h.svc.List(r.Context(), nil, &courseID, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, page)
}

func (h *Handler) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req CreateRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	cert, err := h.svc.Create(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, cert)
}

func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	cert, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if cert.UserID != user.ID && user.Role == models.RoleEmployee {
		apierr.Write(w, h.log, apierr.Forbidden("Not enough permissions"))
		return
	}
	apierr.JSON(w, http.StatusOK, cert)
}

func (h *Handler) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
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
	cert, err := h.svc.Update(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, cert)
}

func (h *Handler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
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
	apierr.JSON(w, http.StatusOK, apierr.OK("Certificate deleted successfully"))
}

// VerifyCertificate is public.
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Verify(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, res)
}

func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.svc.ListBadges(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, badges)
}

func (h *Handler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req BadgeRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	badge, err := h.svc.CreateBadge(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, badge)
}

func (h *Handler) AwardBadge(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	id, err := middleware.PathID(r, "id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	var req AwardBadgeRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	ub, err := h.svc.AwardBadge(r.Context(), user, id, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, ub)
}

// selfOrStaff resolves {user_id}; employees may only read their own.
func selfOrStaff(r *http.Request) (uint, error) {
	user, _ := middleware.GetUserFromContext(r)
	userID, err := middleware.PathID(r, "user_id")
	if err != nil {
		return 0, err
	}
	if userID != user.ID && user.Role == models.RoleEmployee {
		return 0, apierr.Forbidden("Not enough permissions")
	}
	return userID, nil
}

func (h *Handler) UserBadges(w http.ResponseWriter, r *http.Request) {
	userID, err := selfOrStaff(r)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	badges, err := h.svc.UserBadges(r.Context(), userID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, badges)
}

func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req PointsRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	p, err := h.svc.AwardPoints(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, p)
}

func (h *Handler) UserPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := selfOrStaff(r)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	summary, err := h.svc.Points(r.Context(), userID, pagination.FromRequest(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, summary)
}

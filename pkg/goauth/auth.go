package goauth

import (
	"net/http"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/validate"
)

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, req.Password, audit.ClientIP(r))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, pair)
}

// Logout is stateless; clients drop their tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	apierr.JSON(w, http.StatusOK, apierr.OK("Successfully logged out"))
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	h.svc.ForgotPassword(r.Context(), req.Email)
	apierr.JSON(w, http.StatusOK, apierr.OK(ForgotPasswordMessage))
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Password has been reset"))
}

// VerifyEmail accepts the token from the emailed link (?token=) or a JSON body.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("token")
	if code == "" && r.Method == http.MethodPost {
		var req VerifyRequest
		if err := validate.Decode(r, &req); err != nil {
			apierr.Write(w, h.log, err)
			return
		}
		code = req.Token
	}
	if _, err := h.svc.VerifyEmail(r.Context(), code); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Email verified"))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req ChangePasswordRequest
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("Password changed"))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	apierr.JSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	var req ProfileUpdate
	if err := validate.Decode(r, &req); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	updated, err := h.svc.UpdateProfile(r.Context(), user, req)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, updated)
}

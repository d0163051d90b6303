package handlers

import (
	"errors"
	"net/http"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/bookfinder/apiserver/internal/reporting"
	"github.com/bookfinder/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// AuthHandler exposes registration, login and password recovery.
type AuthHandler struct {
	auth     *services.AuthService
	reporter *reporting.Reporter
	logger   logging.Logger
}

func NewAuthHandler(auth *services.AuthService, reporter *reporting.Reporter, logger logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthHandler{
		auth:     auth,
		reporter: reporter,
		logger:   logger.With("component", "http"),
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth *services.AuthService, reporter *reporting.Reporter, logger logging.Logger) {
	handler := NewAuthHandler(auth, reporter, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/verify-otp", handler.VerifyOtp)
	r.Post("/reset-password", handler.ResetPassword)
	r.With(RequireAuth(auth.Tokens())).Get("/me", handler.Me)
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type LoginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: message})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Status: services.LoginStatusSuccess, Token: token})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.fail(w, r, "forgot_password", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req services.OTPInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.auth.VerifyOtp(r.Context(), req)
	if err != nil {
		h.fail(w, r, "verify_otp", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.auth.ResetPassword(r.Context(), req)
	if err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.auth.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.fail(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, body, known := statusFor(err)
	if !known {
		h.logger.Error(r.Context(), "request failed", "operation", operation, "error", err)
		h.reporter.Capture(r.Context(), operation, err)
	} else if status >= http.StatusInternalServerError {
		h.logger.Warn(r.Context(), "request failed", "operation", operation, "error", err)
		h.reporter.Capture(r.Context(), operation, err)
	}
	writeJSON(w, status, body)
}

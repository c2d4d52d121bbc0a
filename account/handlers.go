package account

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/httpx"
)

// AccountService is what the handlers need from Service.
type AccountService interface {
	Login(ctx context.Context, req LoginRequest) (string, error)
	SendOneTimeCode(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, req VerifyEmailRequest) (VerifyResult, error)
	ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error
}

// Handlers serves /api/v1/auth.
type Handlers struct {
	service AccountService
}

func NewHandlers(service AccountService) *Handlers {
	return &Handlers{service: service}
}

// Routes mounts the account endpoints. /verify-account and /verify-otp are
// kept as aliases of /verify-email for older clients.
func (h *Handlers) Routes(tokens *auth.Tokens) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.HandleLogin)
	r.Post("/forget-password", h.HandleSendOneTimeCode)
	r.Post("/resend-otp", h.HandleSendOneTimeCode)
	r.Post("/verify-email", h.HandleVerifyEmail)
	r.Post("/verify-account", h.HandleVerifyEmail)
	r.Post("/verify-otp", h.HandleVerifyEmail)
	r.Post("/reset-password", h.HandleResetPassword)
	r.With(auth.Authorize(tokens, auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin)).
		Patch("/change-password", h.HandleChangePassword)
	return r
}

// HandleLogin godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} httpx.Response{data=LoginData}
// @Failure 400 {object} apperror.ErrorResponse
// @Router /auth/login [post]
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	token, err := h.service.Login(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "User logged in successfully.", LoginData{AccessToken: token})
}

// HandleSendOneTimeCode godoc
// @Summary Send a one-time code
// @Description Backs both /auth/forget-password and /auth/resend-otp.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account email"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Router /auth/forget-password [post]
func (h *Handlers) HandleSendOneTimeCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.service.SendOneTimeCode(r.Context(), req.Email); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "Please check your email. We have sent an OTP.", nil)
}

// HandleVerifyEmail godoc
// @Summary Verify a one-time code
// @Description Verifies an unverified account, or for a verified account returns a reset token as data.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Email and code"
// @Success 200 {object} httpx.Response{data=string}
// @Failure 400 {object} apperror.ErrorResponse
// @Router /auth/verify-email [post]
func (h *Handlers) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.service.VerifyEmail(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, res.Message, res.ResetToken)
}

// HandleResetPassword godoc
// @Summary Reset password
// @Description The reset token from /auth/verify-email goes in the Authorization header.
// @Tags auth
// @Accept json
// @Produce json
// @Param Authorization header string true "Reset token"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /auth/reset-password [post]
func (h *Handlers) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	token, _ := auth.BearerToken(r)
	if err := h.service.ResetPassword(r.Context(), token, req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "Your password has been successfully reset.", nil)
}

// HandleChangePassword godoc
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /auth/change-password [patch]
func (h *Handlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req ChangePasswordRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), claims.UserID, req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "Your password has been successfully changed", nil)
}

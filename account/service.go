// Package account implements the sign-in flows: login, one-time code
// verification, and password reset and change.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/users"
)

// Messages returned to clients.
const (
	MsgEmailVerified      = "Email verify successfully"
	MsgResetTokenIssued   = "Verification Successful: Please securely store and utilize this code for reset password"
	msgUserDoesNotExist   = "User doesn't exist!"
	msgNotAuthorized      = "You are not authorized"
	msgAccountDeactivated = "You don't have permission to access this content. It looks like your account has been deactivated."
	msgVerifyFirst        = "Please verify your account, then try to login again"
	msgPasswordIncorrect  = "Password is incorrect!"
	msgNoCode             = "Please give the otp, check your email we send a code"
	msgWrongCode          = "You provided wrong otp"
	msgCodeExpired        = "Otp already expired, Please try again"
	msgTokenExpired       = "Token expired, Please click again to the forget password"
	msgResetNotStarted    = "You don't have permission to change the password. Please click again to 'Forgot Password'"
	msgResetMismatch      = "New password and Confirm password doesn't match!"
	msgSamePassword       = "Please give different password from current password"
	msgChangeMismatch     = "Password and Confirm password doesn't matched"
)

// CodeIssuer emails one-time codes. *users.Service implements it.
type CodeIssuer interface {
	IssueOneTimeCode(ctx context.Context, email string) error
}

// Service implements the account flows.
type Service struct {
	users  users.Store
	resets ResetTokenStore
	codes  CodeIssuer
	tokens *auth.Tokens
	cfg    *config.AuthConfig
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(userStore users.Store, resets ResetTokenStore, codes CodeIssuer, tokens *auth.Tokens, cfg *config.AuthConfig, logger logrus.FieldLogger) *Service {
	return &Service{
		users:  userStore,
		resets: resets,
		codes:  codes,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) userByEmail(ctx context.Context, email string) (*users.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, users.ErrNotFound) {
		return nil, apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to look up user", err)
	}
	return u, nil
}

// Login checks the credentials of a verified, active account and returns
// an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (string, error) {
	u, err := s.userByEmail(ctx, req.Email)
	if err != nil {
		return "", err
	}
	if u.Status == users.StatusDelete {
		return "", apperror.NewBadRequestError(msgAccountDeactivated, nil)
	}
	if !u.Verified {
		return "", apperror.NewBadRequestError(msgVerifyFirst, nil)
	}
	ok, err := auth.CheckPassword(u.Password, req.Password)
	if err != nil {
		return "", apperror.NewInternalError("failed to check password", err)
	}
	if !ok {
		return "", apperror.NewBadRequestError(msgPasswordIncorrect, nil)
	}

	token, err := s.tokens.Create(u.ID, u.Role, u.Email)
	if err != nil {
		return "", apperror.NewInternalError("failed to create token", err)
	}
	s.logger.WithField("user_id", u.ID).Info("user logged in")
	return token, nil
}

// SendOneTimeCode emails a new code to an existing account. It backs both
// the forgotten password and the resend endpoints.
func (s *Service) SendOneTimeCode(ctx context.Context, email string) error {
	return s.codes.IssueOneTimeCode(ctx, email)
}

// VerifyEmail checks a one-time code. For an unverified account the code
// verifies it. For a verified account the code starts a password reset and
// a reset token is returned.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (VerifyResult, error) {
	u, err := s.userByEmail(ctx, req.Email)
	if err != nil {
		return VerifyResult{}, err
	}

	a := u.Authentication
	switch {
	case a.OneTimeCode == "":
		return VerifyResult{}, apperror.NewBadRequestError(msgNoCode, nil)
	case a.OneTimeCode != req.OneTimeCode:
		return VerifyResult{}, apperror.NewBadRequestError(msgWrongCode, nil)
	case a.ExpireAt == nil || s.now().After(*a.ExpireAt):
		return VerifyResult{}, apperror.NewBadRequestError(msgCodeExpired, nil)
	}

	if !u.Verified {
		if err := s.users.MarkVerified(ctx, u.ID); err != nil {
			return VerifyResult{}, apperror.NewDatabaseError("failed to verify user", err)
		}
		return VerifyResult{Message: MsgEmailVerified}, nil
	}

	if err := s.users.StartPasswordReset(ctx, u.ID); err != nil {
		return VerifyResult{}, apperror.NewDatabaseError("failed to start password reset", err)
	}
	token, err := auth.GenerateResetToken()
	if err != nil {
		return VerifyResult{}, apperror.NewInternalError("failed to generate reset token", err)
	}
	err = s.resets.Create(ctx, ResetToken{
		Token:    token,
		UserID:   u.ID,
		ExpireAt: s.now().Add(s.cfg.ResetTokenExpiresIn),
	})
	if err != nil {
		return VerifyResult{}, apperror.NewDatabaseError("failed to store reset token", err)
	}
	return VerifyResult{Message: MsgResetTokenIssued, ResetToken: token}, nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed on success.
func (s *Service) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	if token == "" {
		return apperror.NewAuthError(msgNotAuthorized, nil)
	}
	rt, err := s.resets.Find(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return apperror.NewAuthError(msgNotAuthorized, nil)
	}
	if err != nil {
		return apperror.NewDatabaseError("failed to look up reset token", err)
	}
	if s.now().After(rt.ExpireAt) {
		return apperror.NewBadRequestError(msgTokenExpired, nil)
	}

	u, err := s.users.FindByID(ctx, rt.UserID)
	if errors.Is(err, users.ErrNotFound) {
		return apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	if err != nil {
		return apperror.NewDatabaseError("failed to get user", err)
	}
	if !u.Authentication.IsResetPassword {
		return apperror.NewBadRequestError(msgResetNotStarted, nil)
	}
	if req.NewPassword != req.ConfirmPassword {
		return apperror.NewBadRequestError(msgResetMismatch, nil)
	}

	if err := s.setPassword(ctx, u.ID, req.NewPassword); err != nil {
		return err
	}
	if err := s.resets.Delete(ctx, token); err != nil {
		s.logger.WithError(err).Warn("failed to delete used reset token")
	}
	return nil
}

// ChangePassword replaces the password of a signed-in user.
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if _, err := uuid.Parse(userID); err != nil {
		return apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	if err != nil {
		return apperror.NewDatabaseError("failed to get user", err)
	}

	ok, err := auth.CheckPassword(u.Password, req.CurrentPassword)
	if err != nil {
		return apperror.NewInternalError("failed to check password", err)
	}
	if !ok {
		return apperror.NewBadRequestError(msgPasswordIncorrect, nil)
	}
	if req.CurrentPassword == req.NewPassword {
		return apperror.NewBadRequestError(msgSamePassword, nil)
	}
	if req.NewPassword != req.ConfirmPassword {
		return apperror.NewBadRequestError(msgChangeMismatch, nil)
	}
	return s.setPassword(ctx, u.ID, req.NewPassword)
}

func (s *Service) setPassword(ctx context.Context, id, password string) error {
	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return apperror.NewInternalError("failed to hash password", err)
	}
	if err := s.users.SetPassword(ctx, id, hash); err != nil {
		return apperror.NewDatabaseError("failed to update password", err)
	}
	s.logger.WithField("user_id", id).Info("password updated")
	return nil
}

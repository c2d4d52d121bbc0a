package account

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"ada@example.com"`
	Password string `json:"password" validate:"required" example:"correct-horse-battery"`
}

// LoginData is returned on a successful login.
type LoginData struct {
	AccessToken string `json:"accessToken" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// EmailRequest asks for a new one-time code.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email" example:"ada@example.com"`
}

// VerifyEmailRequest submits a one-time code.
type VerifyEmailRequest struct {
	Email       string `json:"email" validate:"required,email" example:"ada@example.com"`
	OneTimeCode string `json:"oneTimeCode" validate:"required,numeric,len=6" example:"482913"`
}

// ResetPasswordRequest sets a new password with a reset token.
type ResetPasswordRequest struct {
	NewPassword     string `json:"newPassword" validate:"required,min=8" example:"new-correct-horse"`
	ConfirmPassword string `json:"confirmPassword" validate:"required" example:"new-correct-horse"`
}

// ChangePasswordRequest changes the password of the signed-in user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required" example:"correct-horse-battery"`
	NewPassword     string `json:"newPassword" validate:"required,min=8" example:"new-correct-horse"`
	ConfirmPassword string `json:"confirmPassword" validate:"required" example:"new-correct-horse"`
}

// VerifyResult is the outcome of VerifyEmail. ResetToken is set only when
// the code was used to start a password reset.
type VerifyResult struct {
	Message    string
	ResetToken string
}

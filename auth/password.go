package auth

import (
	"errors"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpAlphabet      = "0123456789"
	otpLength        = 6
	resetTokenLength = 32
)

// HashPassword hashes password with the given bcrypt cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. Any error other than a
// mismatch is returned.
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// GenerateOTP returns a six-digit one-time code.
func GenerateOTP() (string, error) {
	code, err := nanoid.Generate(otpAlphabet, otpLength)
	if err != nil {
		return "", fmt.Errorf("generate one-time code: %w", err)
	}
	return code, nil
}

// GenerateResetToken returns an opaque URL-safe token for password resets.
func GenerateResetToken() (string, error) {
	token, err := nanoid.New(resetTokenLength)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return token, nil
}

package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// CreateAccount is the data for the account verification email.
type CreateAccount struct {
	Name  string
	Email string
	OTP   string
}

// ResetPassword is the data for the one-time code email sent by the
// password reset and resend flows.
type ResetPassword struct {
	Email string
	OTP   string
}

var (
	createAccountTmpl = template.Must(template.New("create-account").Parse(`<body style="font-family: Verdana, sans-serif; background: #f4f6f8; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <h2 style="color: #277e9e;">Hey {{.Name}}, your account is almost ready</h2>
    <p>Use the code below to verify your email address.</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 6px; margin: 24px 0;">{{.OTP}}</div>
    <p style="color: #6b7280;">This code expires shortly. If you did not create an account, ignore this email.</p>
  </div>
</body>`))

	resetPasswordTmpl = template.Must(template.New("reset-password").Parse(`<body style="font-family: Verdana, sans-serif; background: #f4f6f8; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <p>Your single use code is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 6px; margin: 24px 0;">{{.OTP}}</div>
    <p style="color: #6b7280;">This code expires shortly. If you did not request it, you can ignore this email.</p>
  </div>
</body>`))
)

// CreateAccountMessage renders the verification email for a new account.
func CreateAccountMessage(data CreateAccount) (Message, error) {
	html, err := render(createAccountTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: data.Email, Subject: "Verify your account", HTML: html}, nil
}

// ResetPasswordMessage renders the one-time code email.
func ResetPasswordMessage(data ResetPassword) (Message, error) {
	html, err := render(resetPasswordTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: data.Email, Subject: "Your one-time code", HTML: html}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

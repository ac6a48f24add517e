// internal/service/auth/email.go
package auth

import (
	"fmt"
	"html"

	"go.uber.org/zap"
)

// Mailer sends one HTML email.
type Mailer interface {
	Configured() bool
	Send(to, subject, bodyHTML string) error
}

// EmailHelper builds account emails and sends them in the background.
type EmailHelper struct {
	sender  Mailer
	logger  *zap.Logger
	baseURL string
}

func NewEmailHelper(sender Mailer, logger *zap.Logger, baseURL string) *EmailHelper {
	return &EmailHelper{
		sender:  sender,
		logger:  logger,
		baseURL: baseURL,
	}
}

func (h *EmailHelper) PasswordResetEmail(firstName, token string) (string, string) {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", h.baseURL, token)
	body := fmt.Sprintf(`
		<h2>Password reset</h2>
		<p>Hello %s,</p>
		<p>We received a request to reset your Stockwatch password. The link below is valid for one hour.</p>
		<p><a class="button" href="%s">Reset password</a></p>
		<p>If the button does not work use this token: <code>%s</code></p>
		<p>If you did not ask for a reset you can ignore this email.</p>`,
		html.EscapeString(firstName), resetURL, token)
	return "Reset your Stockwatch password", body
}

func (h *EmailHelper) PasswordChangedEmail(firstName string) (string, string) {
	body := fmt.Sprintf(`
		<h2>Password changed</h2>
		<p>Hello %s,</p>
		<p>Your Stockwatch password was just changed. If this was not you, reset your password and revoke all sessions.</p>`,
		html.EscapeString(firstName))
	return "Your Stockwatch password was changed", body
}

func (h *EmailHelper) WelcomeEmail(firstName string) (string, string) {
	body := fmt.Sprintf(`
		<h2>Welcome to Stockwatch</h2>
		<p>Hello %s,</p>
		<p>Your account is ready. Add symbols to your watchlist and set price alerts to get notified.</p>`,
		html.EscapeString(firstName))
	return "Welcome to Stockwatch", body
}

func (h *EmailHelper) SendPasswordReset(to, firstName, token string) {
	subject, body := h.PasswordResetEmail(firstName, token)
	if h.sender == nil || !h.sender.Configured() {
		// no SMTP in development; the token is only reachable through the log
		h.logger.Info("password reset requested", zap.String("email", to), zap.String("token", token))
		return
	}
	h.send(to, subject, body)
}

func (h *EmailHelper) SendPasswordChanged(to, firstName string) {
	subject, body := h.PasswordChangedEmail(firstName)
	h.send(to, subject, body)
}

func (h *EmailHelper) SendWelcome(to, firstName string) {
	subject, body := h.WelcomeEmail(firstName)
	h.send(to, subject, body)
}

func (h *EmailHelper) send(to, subject, body string) {
	if h.sender == nil || !h.sender.Configured() {
		return
	}
	go func() {
		if err := h.sender.Send(to, subject, body); err != nil {
			h.logger.Error("failed to send email",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}

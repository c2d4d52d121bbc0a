// Package mailer renders and delivers transactional emails.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/config"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns an SMTP sender when a host is configured and a LogSender
// otherwise.
func NewSender(cfg *config.EmailConfig, logger logrus.FieldLogger) Sender {
	if cfg.Enabled() {
		return NewSMTPSender(cfg)
	}
	logger.Warn("EMAIL_HOST not set; emails will be written to the log")
	return &LogSender{Logger: logger}
}

// SMTPSender sends mail through an SMTP server with PLAIN auth.
type SMTPSender struct {
	cfg      *config.EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, buildMIME(s.cfg.From, msg, time.Now())); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func buildMIME(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logger logrus.FieldLogger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("email not sent (no SMTP host)")
	s.Logger.Debug(msg.HTML)
	return nil
}

// AsyncSender sends in the background so requests do not wait on SMTP.
// Failures are logged. Wait blocks until queued sends finish.
type AsyncSender struct {
	next    Sender
	logger  logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncSender wraps next. Each send gets its own timeout, detached from
// the request context.
func NewAsyncSender(next Sender, logger logrus.FieldLogger) *AsyncSender {
	return &AsyncSender{next: next, logger: logger, timeout: 30 * time.Second}
}

// Send queues msg and returns immediately.
func (s *AsyncSender) Send(_ context.Context, msg Message) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.next.Send(ctx, msg); err != nil {
			s.logger.WithError(err).WithField("to", msg.To).Error("failed to send email")
		}
	}()
	return nil
}

// Wait blocks until every queued message has been handled.
func (s *AsyncSender) Wait() {
	s.wg.Wait()
}

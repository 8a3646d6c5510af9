package notify

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig holds the relay settings for the email adapter.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailAdapter delivers notifications through an SMTP relay. One call is one
// delivery attempt covering the full recipient list.
type EmailAdapter struct {
	cfg SMTPConfig

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAdapter creates the adapter.
func NewEmailAdapter(cfg SMTPConfig) *EmailAdapter {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &EmailAdapter{cfg: cfg, sendMail: smtp.SendMail}
}

// Send performs a single SMTP delivery attempt to all recipients.
func (a *EmailAdapter) Send(ctx context.Context, recipients []string, title, body string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: empty recipient list", ErrBadEndpoint)
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("%w: recipient %q: %v", ErrBadEndpoint, rcpt, err)
		}
	}
	if a.cfg.Host == "" {
		return fmt.Errorf("%w: smtp relay not configured", ErrBadEndpoint)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + a.cfg.From,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + title,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
		"",
	}, "\r\n")

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	if err := a.sendMail(addr, auth, a.cfg.From, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

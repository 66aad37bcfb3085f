// Package mail provides Mailer implementations: an SMTP sender for real
// deliveries and a capture mailer for tests.
package mail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/MrEthical07/rowAuth"
)

// SMTPConfig configures the SMTP mailer. Addr is host:port; Username may be
// empty for unauthenticated relays.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string

	// From is the envelope and header sender address.
	From string
}

// SMTP sends email through a single SMTP relay. Messages with an HTML body
// go out as multipart/alternative with a plain-text part first.
type SMTP struct {
	config SMTPConfig
}

// NewSMTP validates cfg and returns a mailer.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Addr == "" {
		return nil, errors.New("mail: smtp address is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: sender address is required")
	}
	return &SMTP{config: cfg}, nil
}

// SendEmail implements rowAuth.Mailer. net/smtp has no context support, so
// cancellation is only honored between queueing and dialing.
func (s *SMTP) SendEmail(ctx context.Context, email rowAuth.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if email.To == "" {
		return errors.New("mail: recipient is required")
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		host := s.config.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, host)
	}

	msg := buildMessage(s.config.From, email)
	if err := smtp.SendMail(s.config.Addr, auth, s.config.From, []string{email.To}, msg); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}

	return nil
}

const multipartBoundary = "rowauth-alt-boundary"

func buildMessage(from string, email rowAuth.Email) []byte {
	var b strings.Builder

	sender := from
	if email.FromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", email.FromName), from)
	}

	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(email.PlainBody)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", multipartBoundary)

	fmt.Fprintf(&b, "--%s\r\n", multipartBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(email.PlainBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", multipartBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(email.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", multipartBoundary)

	return []byte(b.String())
}

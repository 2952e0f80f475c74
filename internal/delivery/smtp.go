package delivery

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends envelopes as plain-text e-mail.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer. Authentication is skipped when no username is set.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

// Deliver implements Deliverer.
func (m *SMTPMailer) Deliver(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.Recipient == "" {
		return ErrNoRecipient
	}
	if m.cfg.Host == "" {
		return fmt.Errorf("delivery: smtp host not configured")
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.sendMail(addr, auth, m.cfg.From, []string{env.Recipient}, buildMessage(m.cfg.From, env)); err != nil {
		return fmt.Errorf("delivery: smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, env Envelope) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", env.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", env.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(env.Body, "\n", "\r\n"))
	return []byte(b.String())
}

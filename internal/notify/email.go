package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/config"
)

// EmailSender delivers the markdown report over SMTP.
type EmailSender struct {
	cfg    config.SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *logrus.Logger
}

// NewEmailSender creates a sender from SMTP config.
func NewEmailSender(cfg config.SMTPConfig, logger *logrus.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail, logger: logger}
}

// Send delivers one message with the given subject and markdown body.
func (e *EmailSender) Send(subject, body string) error {
	if e.cfg.Host == "" || len(e.cfg.To) == 0 {
		return fmt.Errorf("smtp not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	msg := buildMessage(e.cfg.From, e.cfg.To, subject, body)
	if err := e.send(addr, auth, e.cfg.From, e.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"recipients": len(e.cfg.To),
		"subject":    subject,
	}).Info("Report email sent")
	return nil
}

const mimeBoundary = "meta-engine-report"

// buildMessage renders a multipart/alternative message: a plain-text
// part with the markdown syntax stripped, and the markdown itself for
// clients that render it.
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(stripMarkdown(body))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/markdown; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

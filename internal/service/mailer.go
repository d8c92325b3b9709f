package service

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"blango/internal/config"
	"blango/internal/observability"
)

// Mail kinds, used as the metric label.
const MailActivation = "activation"

// Message is one outgoing plain-text email.
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the backend named by EMAIL_BACKEND.
func NewMailer(cfg *config.Config, logger *slog.Logger) Mailer {
	if cfg.EmailBackend == "smtp" {
		var auth smtp.Auth
		if cfg.SMTPUsername != "" {
			auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
		}
		return &SMTPMailer{
			Addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
			From: cfg.DefaultFromEmail,
			Auth: auth,
		}
	}
	return &ConsoleMailer{Logger: logger, From: cfg.DefaultFromEmail}
}

func recordMail(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	observability.EmailsSent.WithLabelValues(kind, result).Inc()
}

// ConsoleMailer logs messages instead of sending them.
type ConsoleMailer struct {
	Logger *slog.Logger
	From   string
}

func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email",
		slog.String("kind", msg.Kind),
		slog.String("from", m.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	recordMail(msg.Kind, nil)
	return nil
}

// SMTPMailer sends through an SMTP relay with STARTTLS when offered.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
	// SendMail defaults to smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("parse from address: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parse to address: %w", err)
	}

	send := m.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	err = send(m.Addr, m.Auth, from.Address, []string{to.Address}, buildMessage(from, to, msg.Subject, msg.Body))
	recordMail(msg.Kind, err)
	if err != nil {
		return fmt.Errorf("send %s mail: %w", msg.Kind, err)
	}
	return nil
}

func buildMessage(from, to *mail.Address, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

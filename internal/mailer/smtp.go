// internal/mailer/smtp.go
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/hyggeo/campaign-service/internal/config"
)

// Sender is the part of gomail.Dialer the SMTP mailer uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	fromName  string
	fromEmail string
	sender    Sender
}

func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp mailer: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp mailer: invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp mailer: from address is required")
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}
	return NewSMTPMailerWithSender(cfg, d), nil
}

// NewSMTPMailerWithSender swaps the dialer, mostly for tests.
func NewSMTPMailerWithSender(cfg config.MailConfig, s Sender) *SMTPMailer {
	return &SMTPMailer{
		fromName:  cfg.FromName,
		fromEmail: strings.TrimSpace(cfg.From),
		sender:    s,
	}
}

// Build assembles a multipart/alternative message: text first, HTML as the
// preferred alternative.
func (m *SMTPMailer) Build(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.fromEmail, m.fromName)
	if msg.ToName != "" {
		gm.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		gm.SetHeader("To", msg.To)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}
	return gm
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.sender.DialAndSend(m.Build(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

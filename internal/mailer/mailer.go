// internal/mailer/mailer.go
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hyggeo/campaign-service/internal/config"
)

// Message is one rendered email for one recipient.
type Message struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Mailer is the outbound transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the transport named by cfg.Backend.
func New(cfg config.MailConfig, log zerolog.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "console":
		return NewConsoleMailer(log), nil
	case "smtp":
		return NewSMTPMailer(cfg)
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

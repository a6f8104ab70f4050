// internal/mailer/console.go
package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// ConsoleMailer logs messages instead of sending them.
type ConsoleMailer struct {
	log zerolog.Logger
}

func NewConsoleMailer(log zerolog.Logger) *ConsoleMailer {
	return &ConsoleMailer{log: log.With().Str("component", "console_mailer").Logger()}
}

func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	m.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Str("text", msg.Text).
		Msg("email")
	return nil
}

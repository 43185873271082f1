// ABOUTME: Delivery transports: live SMTP email and a simulated DM channel that only logs.
package stages

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/2389-research/outreach/pipeline"
)

// Transport sends one outbound message to a recipient address or profile.
type Transport interface {
	Send(subject, body, to string) error
}

// SMTPTransport sends email through a configured SMTP relay.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers one email. A missing host is a configuration error and is
// never retried; dial and protocol failures are reported as transient.
func (t *SMTPTransport) Send(subject, body, to string) error {
	if t.Host == "" {
		return &pipeline.ConfigurationError{Missing: "SMTP_HOST"}
	}

	from := t.From
	if from == "" {
		from = t.Username
	}
	if from == "" {
		from = "outreach@example.com"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)

	addr := fmt.Sprintf("%s:%d", t.Host, t.Port)
	var auth smtp.Auth
	if t.Username != "" && t.Password != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}

	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(b.String())); err != nil {
		return &pipeline.TransientDeliveryError{Cause: fmt.Errorf("smtp send to %s: %w", to, err)}
	}
	return nil
}

// SimulatedDM logs direct messages instead of sending them. It never fails.
type SimulatedDM struct {
	Logger *slog.Logger
}

// Send logs the message, truncating the body for readability.
func (t SimulatedDM) Send(subject, body, to string) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	preview := body
	if len(preview) > 120 {
		preview = preview[:120]
	}
	logger.Info("simulated DM", "to", to, "body", preview)
	return nil
}

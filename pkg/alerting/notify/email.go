package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// EmailTransport delivers alert summaries over SMTP
type EmailTransport struct {
	settings alerting.EmailSettings
}

// NewEmailTransport creates the SMTP transport
func NewEmailTransport(settings alerting.EmailSettings) *EmailTransport {
	return &EmailTransport{settings: settings}
}

// Send delivers the summary to all configured recipients. The SMTP dial is
// run in a goroutine so the context deadline bounds the overall send.
func (t *EmailTransport) Send(ctx context.Context, summary alerting.AlertSummary) error {
	if t.settings.SMTPHost == "" || len(t.settings.To) == 0 {
		return fmt.Errorf("email transport is not configured")
	}

	addr := fmt.Sprintf("%s:%d", t.settings.SMTPHost, t.settings.SMTPPort)
	var auth smtp.Auth
	if t.settings.Username != "" {
		auth = smtp.PlainAuth("", t.settings.Username, t.settings.Password, t.settings.SMTPHost)
	}

	subject := fmt.Sprintf("Alert [%s] %s", strings.ToUpper(string(summary.Severity)), summary.Title)
	msg := buildEmailMessage(t.settings.From, t.settings.To, subject, formatText(summary))

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, t.settings.From, t.settings.To, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("email send timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email via %s: %w", addr, err)
		}
		return nil
	}
}

// buildEmailMessage assembles an RFC 5322 message
func buildEmailMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

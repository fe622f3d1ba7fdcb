package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender mirrors alerts by email
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
	sendMail sendMailFunc
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, user, password, from string, to []string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

// Send sends the alert via email
func (s *SMTPSender) Send(ctx context.Context, alert *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	if err := s.sendMail(addr, auth, s.from, s.to, s.buildMessage(alert)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(alert *Alert) []byte {
	subject := fmt.Sprintf("[tokenradar %s] %s", alert.Kind, alert.ContractID)
	if alert.Kind == KindGrowth {
		subject = fmt.Sprintf("[tokenradar growth] %s reached %dx", alert.ContractID, alert.Multiplier)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(alert.Text)
	b.WriteString("\r\n\r\n")
	fmt.Fprintf(&b, "Destination: %s\r\n", alert.Destination)
	fmt.Fprintf(&b, "Alert ID:    %s\r\n", alert.ID)
	fmt.Fprintf(&b, "Created:     %s\r\n", alert.CreatedAt.Format(time.RFC3339))
	return []byte(b.String())
}

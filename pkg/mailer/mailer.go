package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// Address is a named email recipient or sender.
type Address struct {
	Name  string
	Email string
}

// Message is a plain-text transactional email.
type Message struct {
	To      []Address
	Subject string
	Text    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridMailer sends through the SendGrid v3 mail API.
type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGrid builds a SendGrid mailer. An empty host targets the public API.
func NewSendGrid(key, host, fromName, fromEmail string) *SendGridMailer {
	if host == "" {
		host = defaultHost
	}
	return &SendGridMailer{
		key:        key,
		host:       host,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
	}
}

// Send posts the message; 4xx and 5xx responses are returned as errors so the
// caller's retry policy applies.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
	}

	body := sgmail.NewV3Mail()
	body.SetFrom(m.from)
	body.AddPersonalizations(p)
	body.AddContent(sgmail.NewContent("text/plain", msg.Text))

	req := sendgrid.GetRequest(m.key, endpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(body)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send email: status %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
	}
	return nil
}

// LogMailer writes messages to the logger; used when no API key is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a logging mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message envelope.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, to.Email)
	}
	m.logger.Info("email suppressed", zap.Strings("to", recipients), zap.String("subject", msg.Subject))
	return nil
}

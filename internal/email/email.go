// Package email provides the email delivery gateway used for guest cards.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// DefaultSendTimeout bounds a single SMTP delivery attempt.
const DefaultSendTimeout = 15 * time.Second

// Sender delivers plain-text emails. Failures are returned to the caller; the
// dispatcher decides how to report them to the requester.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Opts holds configuration options for the SMTP sender.
type Opts struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Option defines a configuration option for the SMTP sender.
type Option func(*Opts)

// WithHost sets the SMTP server hostname.
func WithHost(host string) Option {
	return func(o *Opts) { o.Host = host }
}

// WithPort sets the SMTP server port.
func WithPort(port int) Option {
	return func(o *Opts) { o.Port = port }
}

// WithCredentials sets the SMTP username and password.
func WithCredentials(username, password string) Option {
	return func(o *Opts) { o.Username = username; o.Password = password }
}

// WithFrom sets the sender address and display name.
func WithFrom(email, name string) Option {
	return func(o *Opts) { o.FromEmail = email; o.FromName = name }
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	cfg Opts
}

// NewSMTPSender creates an SMTP sender from the given options.
func NewSMTPSender(opts ...Option) (*SMTPSender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host must be provided")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sender address must be provided")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

// SendEmail delivers a plain-text message.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" || subject == "" || body == "" {
		return fmt.Errorf("to, subject and body are all required")
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(DefaultSendTimeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Error("SMTPSender.SendEmail: delivery failed", "error", err, "to", to)
		return fmt.Errorf("smtp send: %w", err)
	}
	slog.Debug("SMTPSender.SendEmail: delivered", "to", to, "subject", subject)
	return nil
}

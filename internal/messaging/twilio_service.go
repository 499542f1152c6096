package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/phone"
)

// Opts holds configuration options for the Twilio SMS service.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS service.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the E.164 number outbound SMS is sent from.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// messageCreator is the slice of the Twilio REST API the service uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService implements Service over the Twilio SMS REST API. Incoming SMS
// reaches the system through HTTP webhooks, so Responses always returns nil.
type TwilioService struct {
	api  messageCreator
	from string
}

// NewTwilioService creates an SMS service from the given options, falling back
// to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioService(opts ...Option) (*TwilioService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{api: client.Api, from: cfg.FromNumber}, nil
}

// ValidateAndCanonicalizeRecipient normalizes a phone number to E.164 and
// rejects recipients that are too short to be dialable.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	normalized := phone.Normalize(recipient)
	if len(normalized) < models.MinPhoneNumberLength {
		return "", fmt.Errorf("%w: %q", models.ErrShortPhoneNumber, recipient)
	}
	return normalized, nil
}

// SendMessage sends one SMS from the service's configured number.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("TwilioService.SendMessage: send failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("TwilioService.SendMessage: sent", "to", to, "body_length", len(body))
	return nil
}

// Start is a no-op; SMS delivery needs no background processing.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (s *TwilioService) Stop() error { return nil }

// Responses returns nil; inbound SMS is webhook-driven.
func (s *TwilioService) Responses() <-chan models.InboundText { return nil }

package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/phone"
	"github.com/hannahlabs/leadflow/internal/whatsapp"
)

const (
	// DefaultChannelBufferSize is the buffer size of the inbound message channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends before dropping.
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service over the Whatsmeow-based whatsapp client.
// Incoming messages are pushed by the transport, so the service forwards them
// onto the Responses channel for the intake loop to consume.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client
	responses chan models.InboundText
	done      chan struct{}
}

// NewWhatsAppService creates a WhatsAppService wrapping the given sender. Event
// handling is only available when the sender is a full whatsapp.Client.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		responses: make(chan models.InboundText, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	}
	return service
}

// ValidateAndCanonicalizeRecipient normalizes a recipient phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	normalized := phone.Normalize(recipient)
	if len(normalized) < models.MinPhoneNumberLength {
		return "", models.ErrShortPhoneNumber
	}
	return normalized, nil
}

// SendMessage delivers a message over WhatsApp.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	return s.client.SendMessage(ctx, to, body)
}

// Start registers the transport event handler when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService.Start: no full client, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	return nil
}

// Stop closes the inbound channel and disconnects the transport.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	close(s.responses)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	return nil
}

// Responses returns the channel of incoming WhatsApp messages.
func (s *WhatsAppService) Responses() <-chan models.InboundText {
	return s.responses
}

func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService.handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})

	<-ctx.Done()
	slog.Debug("WhatsAppService.handleEvents: stopping, context cancelled")
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		// Skip non-text messages (images, audio, etc.).
		return
	}

	from := evt.Info.Sender.User
	if !strings.HasPrefix(from, "+") {
		from = "+" + from
	}

	inbound := models.InboundText{
		From: from,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}

	select {
	case s.responses <- inbound:
		slog.Debug("WhatsAppService.handleIncomingMessage: forwarded", "from", inbound.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.handleIncomingMessage: channel blocked, dropping message", "from", inbound.From)
	}
}

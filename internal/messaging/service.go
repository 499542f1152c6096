// Package messaging provides pluggable outbound text delivery for LeadFlow.
package messaging

import (
	"context"

	"github.com/hannahlabs/leadflow/internal/models"
)

// Service defines a message delivery abstraction. SMS arrives over HTTP
// webhooks, so the Twilio implementation never emits on Responses; push
// transports like WhatsApp feed incoming messages through it.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient from the service's number.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., transport event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming messages, or nil for
	// webhook-driven transports.
	Responses() <-chan models.InboundText
}

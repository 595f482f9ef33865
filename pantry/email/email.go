// pantry/email/email.go
// Package email delivers plain-text messages through one of several
// transports chosen at startup: authenticated SMTP submission and local
// sendmail (both via github.com/wneessen/go-mail), or a plain relay to a
// nearby MTA (github.com/emersion/go-smtp) with optional DKIM signing.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrNoRecipients is returned when a message has no To address.
	ErrNoRecipients = errors.New("email: no recipients specified")

	// ErrEmptyBody is returned when a message has no text body.
	ErrEmptyBody = errors.New("email: message body is empty")

	// ErrNotConfigured is returned by a Provider whose mail config is
	// missing or unusable.
	ErrNotConfigured = errors.New("email: mail transport is not configured")
)

// Message is one outgoing plain-text message.
type Message struct {
	FromAddress string
	FromName    string

	To []string

	// ReplyTo is where replies go; for contact mail this is the submitter.
	ReplyToAddress string
	ReplyToName    string

	// EnvelopeFrom is the SMTP MAIL FROM (bounce) address. Defaults to FromAddress.
	EnvelopeFrom string

	Subject  string
	TextBody string
}

// Validate checks that the message can be handed to a transport.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.TextBody) == "" {
		return ErrEmptyBody
	}
	if _, err := mail.ParseAddress(m.FromAddress); err != nil {
		return fmt.Errorf("email: invalid from address: %w", err)
	}
	for _, to := range m.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("email: invalid to address %q: %w", to, err)
		}
	}
	if m.ReplyToAddress != "" {
		if _, err := mail.ParseAddress(m.ReplyToAddress); err != nil {
			return fmt.Errorf("email: invalid reply-to address: %w", err)
		}
	}
	return nil
}

func (m Message) envelopeFrom() string {
	if m.EnvelopeFrom != "" {
		return m.EnvelopeFrom
	}
	return m.FromAddress
}

// Transport delivers a message synchronously. Implementations must be
// safe for concurrent use.
type Transport interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// Send delivers msg or returns why it could not.
	Send(ctx context.Context, msg Message) error

	// Check verifies the transport is reachable without sending mail.
	Check(ctx context.Context) error
}

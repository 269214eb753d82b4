package mail

import (
	"context"
	"time"
)

// Message is one outbound email. It is built per send and never persisted;
// only its outcome is recorded by the campaign store.
type Message struct {
	To            string
	Subject       string
	HTML          string
	Text          string
	CampaignID    string
	RecipientID   string
	RecipientType string
	FromName      string
	FromEmail     string
	Headers       map[string]string
}

// SendResult reports the outcome of a single delivery attempt. Per-recipient
// transport failures are reported inside the result with a nil error; a
// non-nil error from Send means the transport itself is unusable.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
	Provider  Provider
	SentAt    time.Time
}

// Transport is a live, authenticated channel bound to one provider.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
	// Probe performs a lightweight live connection test without sending mail.
	Probe(ctx context.Context) error
}

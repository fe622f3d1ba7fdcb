package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the three alert streams
type Kind string

const (
	KindPrimary    Kind = "primary"
	KindEscalation Kind = "escalation"
	KindGrowth     Kind = "growth"
)

// Alert is one outbound message
type Alert struct {
	ID          string
	Kind        Kind
	Destination string // chat id or @channel
	ContractID  string
	Text        string
	Multiplier  int64 // growth alerts only
	CreatedAt   time.Time
}

// New creates an alert with a fresh id
func New(kind Kind, destination, contractID, text string) *Alert {
	return &Alert{
		ID:          uuid.NewString(),
		Kind:        kind,
		Destination: destination,
		ContractID:  contractID,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}
}

// Sender defines the interface for alert senders. A nil error means the
// transport confirmed delivery.
type Sender interface {
	Send(ctx context.Context, alert *Alert) error
}

// NamedSender is a Sender that can identify itself in logs and metrics
type NamedSender interface {
	Sender
	Name() string
}

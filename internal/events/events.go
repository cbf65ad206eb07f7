package events

import (
	"context"
	"time"
)

// Type identifies a request-lifecycle notification.
type Type string

const (
	RequestCreated   Type = "request.created"
	RequestAccepted  Type = "request.accepted"
	RequestRejected  Type = "request.rejected"
	RequestCancelled Type = "request.cancelled"
	BookReturned     Type = "book.returned"
)

// Event describes one lifecycle transition. RecipientID is the user the
// notification is for: the owner for created/cancelled, the requester for
// accepted/rejected, the owner for returned.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	BookID      string    `json:"bookId"`
	RequestID   string    `json:"requestId,omitempty"`
	ActorID     string    `json:"actorId"`
	RecipientID string    `json:"recipientId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Publisher emits lifecycle events. Publishing is best-effort: the state
// machine never fails because a notification could not be queued.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops all events. Used when no Redis is configured and in
// tests that do not care about notifications.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

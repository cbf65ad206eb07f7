package events

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier delivers lifecycle events to recipients. The current delivery
// channel is the structured log; push or email channels plug in behind the
// same handler signature later.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier builds a notifier writing to logger, or the default logger
// when nil.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Handle delivers one event.
func (n *Notifier) Handle(_ context.Context, e Event) error {
	message, ok := messageFor(e)
	if !ok {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	n.logger.Info("notification",
		"event_id", e.ID,
		"type", string(e.Type),
		"recipient_id", e.RecipientID,
		"book_id", e.BookID,
		"request_id", e.RequestID,
		"message", message,
	)
	return nil
}

func messageFor(e Event) (string, bool) {
	switch e.Type {
	case RequestCreated:
		return "you received a new request for your book", true
	case RequestAccepted:
		return "your request was accepted", true
	case RequestRejected:
		return "your request was rejected", true
	case RequestCancelled:
		return "a request on your book was cancelled", true
	case BookReturned:
		return "your book was marked as returned", true
	default:
		return "", false
	}
}

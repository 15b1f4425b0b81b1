// Package notify delivers committed marketplace events to interested parties.
package notify

import (
	"context"
	"log"

	"greendrake/trueque/internal/models"
)

// Sink receives events after the state change they describe has been stored.
// A failing sink never undoes the change.
type Sink interface {
	Publish(ctx context.Context, event models.Event) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, event models.Event) error

func (f SinkFunc) Publish(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

// LogSink writes one log line per event.
type LogSink struct{}

// NewLogSink creates a new LogSink.
func NewLogSink() Sink {
	return LogSink{}
}

func (LogSink) Publish(_ context.Context, event models.Event) error {
	log.Printf("event %s listing=%s offer=%s", event.Type, event.ListingID, event.OfferID)
	return nil
}

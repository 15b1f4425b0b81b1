package notify

import (
	"context"
	"errors"
	"fmt"

	"greendrake/trueque/internal/models"
)

// CompositeSink implements the Sink interface and delegates to multiple Sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink creates a new CompositeSink.
// It returns the concrete type so AddSink can be called directly.
func NewCompositeSink(sinks ...Sink) *CompositeSink {
	return &CompositeSink{sinks: sinks}
}

// AddSink adds a sink to the composite's list.
func (cs *CompositeSink) AddSink(sink Sink) {
	if sink != nil {
		cs.sinks = append(cs.sinks, sink)
	}
}

// Publish hands the event to every sink, even after one fails, and joins
// the failures into one error.
func (cs *CompositeSink) Publish(ctx context.Context, event models.Event) error {
	var errs []error
	for _, sink := range cs.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("composite publish of %s failed: %w", event.Type, errors.Join(errs...))
	}
	return nil
}

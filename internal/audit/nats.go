package audit

import (
	"context"
	"fmt"

	"payrouter/internal/common/events"
	"payrouter/internal/common/middleware"
	"payrouter/internal/transfer"
)

// StreamName is the JetStream stream holding transition events.
const StreamName = "TRANSFER_TRANSITIONS"

// StreamSubjects covers every transition event subject.
var StreamSubjects = []string{"events.transfer.>"}

// NATSRecorder publishes each transition as a domain event.
type NATSRecorder struct {
	publisher events.EventPublisher
}

// NewNATSRecorder creates an event-publishing recorder.
func NewNATSRecorder(publisher events.EventPublisher) *NATSRecorder {
	return &NATSRecorder{publisher: publisher}
}

// Record publishes the transition, tagged with the request's correlation id
// when the transition came from a webhook delivery or a manual sweep.
func (r *NATSRecorder) Record(ctx context.Context, t transfer.Transition) error {
	event, err := events.NewEvent(eventType(t.To), events.AggregatePaymentIntent, t.PaymentID, t)
	if err != nil {
		return fmt.Errorf("building transition event: %w", err)
	}
	if cid := middleware.GetCorrelationID(ctx); cid != "" {
		event.WithCorrelation(cid)
	}
	return r.publisher.Publish(ctx, event)
}

func eventType(to transfer.Status) string {
	switch to {
	case transfer.StatusDone:
		return events.EventTransferCompleted
	case transfer.StatusPending:
		return events.EventTransferPending
	case transfer.StatusFailed:
		return events.EventTransferFailed
	default:
		return "transfer." + string(to)
	}
}

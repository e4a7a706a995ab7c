package stripe

import (
	"encoding/json"
	"fmt"

	stripesdk "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"payrouter/internal/transfer"
)

// VerifyEvent checks the payload signature against the shared webhook
// secret and reconstructs a typed event. The raw body must be passed
// untouched; any re-serialization breaks the signature.
func (a *Adapter) VerifyEvent(payload []byte, sigHeader string) (*transfer.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, a.webhookSecret)
	if err != nil {
		return nil, err
	}

	out := &transfer.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if out.Type == transfer.EventPaymentSucceeded {
		var pi stripesdk.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("parsing payment intent payload: %w", err)
		}
		out.PaymentIntent = fromPaymentIntent(&pi)
	}

	return out, nil
}

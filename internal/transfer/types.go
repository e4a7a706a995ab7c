// Package transfer implements the payment-to-destination transfer state
// machine. Transfer state lives in the payment intent's own metadata at the
// provider; the provider is the sole source of truth.
package transfer

import (
	"context"
	"fmt"
)

// Status is the transfer lifecycle state encoded in payment intent metadata.
type Status string

const (
	StatusUnset   Status = ""
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Metadata keys owned by this service on the payment intent.
const (
	MetaStatus      = "transfer_status"
	MetaDestination = "transfer_destination"
	MetaAmount      = "transfer_amount"
	MetaLastError   = "last_transfer_error"
	MetaLease       = "transfer_lease"
)

// Metadata keys written onto created transfers.
const (
	MetaPaymentIntent = "payment_intent"
	MetaRetry         = "retry"
)

// EventPaymentSucceeded is the only inbound event kind acted on.
const EventPaymentSucceeded = "payment_intent.succeeded"

// PaymentIntent is the provider-owned record of a captured payment.
type PaymentIntent struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
}

// TransferStatus reads the transfer state recorded on the intent.
func (pi *PaymentIntent) TransferStatus() Status {
	return Status(pi.Metadata[MetaStatus])
}

// ResolveAmount returns the transferable amount in minor units, preferring
// the amount actually received. Zero means nothing is transferable.
func (pi *PaymentIntent) ResolveAmount() int64 {
	if pi.AmountReceived > 0 {
		return pi.AmountReceived
	}
	if pi.Amount > 0 {
		return pi.Amount
	}
	return 0
}

// Transfer is the provider-owned record of a fund movement.
type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

// Event is a verified provider notification.
type Event struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntent
}

// CreateTransferRequest asks the provider for an idempotent transfer.
type CreateTransferRequest struct {
	Amount         int64
	Currency       string
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Provider is the external payment provider surface the service depends on.
// UpdateMetadata has merge semantics: only the supplied keys are written and
// an empty value deletes the key.
type Provider interface {
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentIntent, error)
	CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*Transfer, error)
	SearchPendingIntents(ctx context.Context, limit int) ([]*PaymentIntent, error)
	ListIntents(ctx context.Context, limit int) ([]*PaymentIntent, error)
}

// ProviderError is a structured failure from the provider API.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// WebhookIdempotencyKey derives the transfer-creation key for a webhook
// delivery. Redeliveries of the same event reuse the key, so the provider
// collapses duplicate creation calls.
func WebhookIdempotencyKey(eventID string) string {
	return "transfer_" + eventID
}

// RetryIdempotencyKey derives the transfer-creation key for a sweeper retry.
func RetryIdempotencyKey(paymentID string) string {
	return "retry_transfer_" + paymentID
}

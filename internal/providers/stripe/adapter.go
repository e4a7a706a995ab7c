// Package stripe adapts the Stripe API to the transfer provider surface.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	stripesdk "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"payrouter/internal/transfer"
)

// Config holds Stripe credentials.
type Config struct {
	SecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
}

// Adapter implements the transfer provider against the Stripe API.
type Adapter struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

var _ transfer.Provider = (*Adapter)(nil)

// NewAdapter creates a Stripe adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Adapter{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// GetPaymentIntent fetches a payment intent.
func (a *Adapter) GetPaymentIntent(ctx context.Context, id string) (*transfer.PaymentIntent, error) {
	params := &stripesdk.PaymentIntentParams{}
	params.Context = ctx

	pi, err := a.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapErr(err)
	}
	return fromPaymentIntent(pi), nil
}

// UpdateMetadata patches intent metadata. Stripe merges per key: only the
// supplied keys change, an empty value removes the key.
func (a *Adapter) UpdateMetadata(ctx context.Context, id string, metadata map[string]string) (*transfer.PaymentIntent, error) {
	params := &stripesdk.PaymentIntentParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := a.api.PaymentIntents.Update(id, params)
	if err != nil {
		return nil, mapErr(err)
	}
	return fromPaymentIntent(pi), nil
}

// CreateTransfer creates an idempotently keyed transfer.
func (a *Adapter) CreateTransfer(ctx context.Context, req *transfer.CreateTransferRequest) (*transfer.Transfer, error) {
	params := &stripesdk.TransferParams{
		Amount:      stripesdk.Int64(req.Amount),
		Currency:    stripesdk.String(req.Currency),
		Destination: stripesdk.String(req.Destination),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	created, err := a.api.Transfers.New(params)
	if err != nil {
		return nil, mapErr(err)
	}

	return &transfer.Transfer{
		ID:          created.ID,
		Amount:      created.Amount,
		Currency:    string(created.Currency),
		Destination: req.Destination,
	}, nil
}

// SearchPendingIntents uses the server-side metadata search.
func (a *Adapter) SearchPendingIntents(ctx context.Context, limit int) ([]*transfer.PaymentIntent, error) {
	params := &stripesdk.PaymentIntentSearchParams{
		SearchParams: stripesdk.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['%s']:'%s'", transfer.MetaStatus, transfer.StatusPending),
			Limit:   stripesdk.Int64(int64(limit)),
		},
	}

	iter := a.api.PaymentIntents.Search(params)
	var out []*transfer.PaymentIntent
	for iter.Next() {
		out = append(out, fromPaymentIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// ListIntents lists a bounded page of recent intents.
func (a *Adapter) ListIntents(ctx context.Context, limit int) ([]*transfer.PaymentIntent, error) {
	params := &stripesdk.PaymentIntentListParams{}
	params.Context = ctx
	params.Limit = stripesdk.Int64(int64(limit))

	iter := a.api.PaymentIntents.List(params)
	var out []*transfer.PaymentIntent
	for iter.Next() {
		out = append(out, fromPaymentIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func fromPaymentIntent(pi *stripesdk.PaymentIntent) *transfer.PaymentIntent {
	if pi == nil {
		return nil
	}
	meta := pi.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &transfer.PaymentIntent{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Description:    pi.Description,
		Metadata:       meta,
	}
}

// mapErr lifts Stripe's structured error into the domain error so callers
// can classify on the code rather than the message text.
func mapErr(err error) error {
	var serr *stripesdk.Error
	if errors.As(err, &serr) {
		return &transfer.ProviderError{Code: string(serr.Code), Message: serr.Msg}
	}
	return err
}

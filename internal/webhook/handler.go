// Package webhook receives payment-confirmation notifications from the
// provider, verifies them, and routes captured funds to a destination
// account.
package webhook

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"payrouter/internal/routing"
	"payrouter/internal/transfer"
)

// SignatureHeader carries the provider's payload signature. Header lookup is
// case-insensitive, so the capitalized and uppercase variants seen in the
// wild all resolve here.
const SignatureHeader = "Stripe-Signature"

// Verifier reconstructs a typed event from a raw payload and its signature.
type Verifier interface {
	VerifyEvent(payload []byte, sigHeader string) (*transfer.Event, error)
}

// IntentReader re-reads a payment intent so status checks see fresh state.
type IntentReader interface {
	GetPaymentIntent(ctx context.Context, id string) (*transfer.PaymentIntent, error)
}

// Handler is the webhook receiver endpoint.
type Handler struct {
	verifier  Verifier
	intents   IntentReader
	transfers *transfer.Service
	table     *routing.Table
	logger    *slog.Logger
}

// NewHandler creates the webhook receiver.
func NewHandler(verifier Verifier, intents IntentReader, transfers *transfer.Service, table *routing.Table, logger *slog.Logger) *Handler {
	return &Handler{
		verifier:  verifier,
		intents:   intents,
		transfers: transfers,
		table:     table,
		logger:    logger,
	}
}

// ServeHTTP handles one webhook delivery. Branches that are genuine no-ops
// answer 2xx so the provider stops redelivering; malformed or unverifiable
// requests get 4xx, and a payment claimed by a concurrent attempt gets 409
// so delivery is retried rather than dropped.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodGet:
		// Liveness probe.
		respond(w, http.StatusOK, "OK")
		return
	default:
		respond(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		respond(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		h.logger.Warn("webhook missing signature header")
		respond(w, http.StatusBadRequest, "Missing signature")
		return
	}

	event, err := h.verifier.VerifyEvent(body, sig)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		respond(w, http.StatusBadRequest, fmt.Sprintf("Webhook error: %v", err))
		return
	}

	h.logger.Info("received event", "event_id", event.ID, "type", event.Type)

	if event.Type != transfer.EventPaymentSucceeded {
		respond(w, http.StatusOK, "Ignored")
		return
	}
	if event.PaymentIntent == nil {
		h.logger.Warn("succeeded event without payment intent", "event_id", event.ID)
		respond(w, http.StatusOK, "Ignored")
		return
	}

	h.process(r.Context(), w, event)
}

func (h *Handler) process(ctx context.Context, w http.ResponseWriter, event *transfer.Event) {
	// Re-read the intent: a concurrent delivery or sweep may already have
	// recorded completion since the event was emitted.
	intent, err := h.intents.GetPaymentIntent(ctx, event.PaymentIntent.ID)
	if err != nil {
		h.logger.Error("failed to load payment intent",
			"event_id", event.ID,
			"payment_intent", event.PaymentIntent.ID,
			"error", err,
		)
		respond(w, http.StatusBadRequest, fmt.Sprintf("Webhook error: %v", err))
		return
	}

	if intent.TransferStatus() == transfer.StatusDone {
		respond(w, http.StatusOK, "already transferred")
		return
	}

	amount := intent.ResolveAmount()
	if amount <= 0 {
		h.logger.Info("no transferable amount", "payment_intent", intent.ID)
		respond(w, http.StatusOK, "no amount")
		return
	}

	destination, ok := h.table.Classify(intent.Description)
	if !ok {
		h.logger.Info("no destination match",
			"payment_intent", intent.ID,
			"description", intent.Description,
		)
		respond(w, http.StatusOK, "no destination match")
		return
	}

	result, err := h.transfers.Execute(ctx, transfer.Attempt{
		EventID:     event.ID,
		Intent:      intent,
		Amount:      amount,
		Currency:    h.table.NormalizeCurrency(intent.Currency),
		Destination: destination,
	})
	if err != nil {
		h.logger.Error("transfer attempt errored",
			"event_id", event.ID,
			"payment_intent", intent.ID,
			"error", err,
		)
		respond(w, http.StatusBadRequest, fmt.Sprintf("Webhook error: %v", err))
		return
	}

	switch result.Outcome {
	case transfer.OutcomeCompleted:
		respond(w, http.StatusOK, "Transfer created")
	case transfer.OutcomePending:
		// Recoverable; the sweeper will retry once funds settle.
		respond(w, http.StatusOK, "Transfer pending")
	case transfer.OutcomeSkipped:
		respond(w, http.StatusOK, result.Reason)
	case transfer.OutcomeInProgress:
		// The payment has no recorded status yet. If the lease holder dies
		// before creating the transfer, the sweeper cannot find it either,
		// so this delivery must not be acked: answer 409 and the provider
		// redelivers after the lease expires.
		respond(w, http.StatusConflict, result.Reason)
	default:
		respond(w, http.StatusBadRequest, fmt.Sprintf("Webhook error: %v", result.Err))
	}
}

// readBody returns the raw payload, undoing base64 transport encoding when
// the sender flags it.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(r.Header.Get("Content-Transfer-Encoding"), "base64") {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return nil, fmt.Errorf("decoding base64 body: %w", err)
		}
		return decoded, nil
	}
	return body, nil
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

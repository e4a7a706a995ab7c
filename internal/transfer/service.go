package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"
)

// maxErrorLen bounds the diagnostic excerpt stored in intent metadata.
const maxErrorLen = 200

// Transition is a transfer-state change, emitted to the audit side-channel.
type Transition struct {
	PaymentID   string    `json:"payment_intent"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Destination string    `json:"destination,omitempty"`
	AmountMinor int64     `json:"amount_minor,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Retry       bool      `json:"retry,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Recorder receives state transitions. Recording is best-effort: failures
// are logged and never block the payment path.
type Recorder interface {
	Record(ctx context.Context, t Transition) error
}

// Attempt is one request to move a payment's funds to a destination.
type Attempt struct {
	// EventID identifies the triggering webhook event. Empty on retries.
	EventID     string
	Intent      *PaymentIntent
	Amount      int64
	Currency    string
	Destination string
	Retry       bool
}

// Outcome classifies how an attempt ended.
type Outcome string

const (
	// OutcomeCompleted: transfer created, status recorded as done.
	OutcomeCompleted Outcome = "completed"
	// OutcomePending: transient failure, status recorded as pending.
	OutcomePending Outcome = "pending"
	// OutcomeFailed: non-transient failure. Status becomes failed on the
	// retry path; the webhook path leaves status untouched.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped: nothing to do, the transfer is already recorded done.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeInProgress: another attempt holds the lease. Nothing was
	// written, so if that holder dies before creating the transfer the
	// payment still has no status and no path will find it. The webhook
	// handler must answer non-2xx so the provider redelivers after the
	// lease TTL.
	OutcomeInProgress Outcome = "in_progress"
)

// Result is the outcome of an executed attempt.
type Result struct {
	Outcome  Outcome
	Reason   string
	Transfer *Transfer
	Err      error
}

// Service executes transfer attempts against the provider.
type Service struct {
	provider Provider
	recorder Recorder
	logger   *slog.Logger
	leaseTTL time.Duration
	now      func() time.Time
}

// NewService creates a transfer service. recorder may be nil.
func NewService(provider Provider, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		recorder: recorder,
		logger:   logger,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
}

// Execute runs the transfer state machine for one attempt. The caller has
// already resolved a positive amount and a destination; currency must be
// normalized. A returned error means the attempt could not be carried out at
// all (provider unreachable); business failures land in the Result.
func (s *Service) Execute(ctx context.Context, att Attempt) (*Result, error) {
	intent := att.Intent

	if intent.TransferStatus() == StatusDone {
		return &Result{Outcome: OutcomeSkipped, Reason: "already transferred"}, nil
	}

	fresh, acquired, err := s.acquireLease(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("acquiring transfer lease for %s: %w", intent.ID, err)
	}
	if !acquired {
		s.logger.Info("transfer attempt skipped, lease held elsewhere",
			"payment_intent", intent.ID,
			"retry", att.Retry,
		)
		return &Result{Outcome: OutcomeInProgress, Reason: "transfer in progress"}, nil
	}

	// The lease write raced ahead of a competing attempt; the fresh read may
	// show that the other path already finished.
	if fresh.TransferStatus() == StatusDone {
		s.releaseLease(ctx, intent.ID)
		return &Result{Outcome: OutcomeSkipped, Reason: "already transferred"}, nil
	}
	from := fresh.TransferStatus()

	key := WebhookIdempotencyKey(att.EventID)
	meta := map[string]string{MetaPaymentIntent: intent.ID}
	if att.Retry {
		key = RetryIdempotencyKey(intent.ID)
		meta[MetaRetry] = "true"
	}

	created, err := s.provider.CreateTransfer(ctx, &CreateTransferRequest{
		Amount:         att.Amount,
		Currency:       att.Currency,
		Destination:    att.Destination,
		Metadata:       meta,
		IdempotencyKey: key,
	})
	if err == nil {
		return s.complete(ctx, att, from, created)
	}

	if IsTransient(err) {
		return s.markPending(ctx, att, from, err)
	}

	if att.Retry {
		return s.markFailed(ctx, att, from, err)
	}

	// Webhook path: leave status as-is so redelivery or the operator can
	// retry; just surface the failure.
	s.releaseLease(ctx, intent.ID)
	s.logger.Error("transfer failed",
		"payment_intent", intent.ID,
		"event_id", att.EventID,
		"destination", att.Destination,
		"error", err,
	)
	return &Result{Outcome: OutcomeFailed, Err: err}, nil
}

func (s *Service) complete(ctx context.Context, att Attempt, from Status, created *Transfer) (*Result, error) {
	intent := att.Intent

	update := map[string]string{
		MetaStatus:      string(StatusDone),
		MetaDestination: att.Destination,
		MetaAmount:      strconv.FormatInt(att.Amount, 10),
		MetaLastError:   "",
		MetaLease:       "",
	}
	if _, err := s.provider.UpdateMetadata(ctx, intent.ID, update); err != nil {
		// The transfer exists; the idempotency key makes a repeat attempt
		// harmless, so surface the write failure for redelivery.
		return nil, fmt.Errorf("recording transfer done for %s: %w", intent.ID, err)
	}

	s.logger.Info("transfer completed",
		"payment_intent", intent.ID,
		"transfer_id", created.ID,
		"destination", att.Destination,
		"amount", att.Amount,
		"currency", att.Currency,
		"retry", att.Retry,
	)
	s.record(ctx, att, from, StatusDone, "")

	return &Result{Outcome: OutcomeCompleted, Transfer: created}, nil
}

func (s *Service) markPending(ctx context.Context, att Attempt, from Status, cause error) (*Result, error) {
	intent := att.Intent
	excerpt := truncateError(cause, maxErrorLen)

	update := map[string]string{
		MetaStatus:      string(StatusPending),
		MetaDestination: att.Destination,
		MetaAmount:      strconv.FormatInt(att.Amount, 10),
		MetaLastError:   excerpt,
		MetaLease:       "",
	}
	if _, err := s.provider.UpdateMetadata(ctx, intent.ID, update); err != nil {
		return nil, fmt.Errorf("recording transfer pending for %s: %w", intent.ID, err)
	}

	s.logger.Info("transfer pending, funds not yet available",
		"payment_intent", intent.ID,
		"destination", att.Destination,
		"retry", att.Retry,
		"error", excerpt,
	)
	s.record(ctx, att, from, StatusPending, excerpt)

	return &Result{Outcome: OutcomePending, Err: cause}, nil
}

func (s *Service) markFailed(ctx context.Context, att Attempt, from Status, cause error) (*Result, error) {
	intent := att.Intent
	excerpt := truncateError(cause, maxErrorLen)

	update := map[string]string{
		MetaStatus:    string(StatusFailed),
		MetaLastError: excerpt,
		MetaLease:     "",
	}
	if _, err := s.provider.UpdateMetadata(ctx, intent.ID, update); err != nil {
		return nil, fmt.Errorf("recording transfer failed for %s: %w", intent.ID, err)
	}

	s.logger.Error("transfer retry failed, no further automatic retries",
		"payment_intent", intent.ID,
		"destination", att.Destination,
		"error", excerpt,
	)
	s.record(ctx, att, from, StatusFailed, excerpt)

	return &Result{Outcome: OutcomeFailed, Err: cause}, nil
}

func (s *Service) record(ctx context.Context, att Attempt, from, to Status, errText string) {
	if s.recorder == nil {
		return
	}
	t := Transition{
		PaymentID:   att.Intent.ID,
		From:        from,
		To:          to,
		Destination: att.Destination,
		AmountMinor: att.Amount,
		Currency:    att.Currency,
		Retry:       att.Retry,
		Error:       errText,
		At:          s.now().UTC(),
	}
	if err := s.recorder.Record(ctx, t); err != nil {
		s.logger.Error("failed to record transfer transition",
			"payment_intent", att.Intent.ID,
			"to", to,
			"error", err,
		)
	}
}

// truncateError bounds the excerpt to n bytes, backing up so a multibyte
// rune is never cut in half.
func truncateError(err error, n int) string {
	msg := err.Error()
	if len(msg) <= n {
		return msg
	}
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}

// Package sweeper re-scans payments stuck in the pending transfer state and
// retries their transfers.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"payrouter/internal/routing"
	"payrouter/internal/transfer"
)

// Config holds sweeper tuning.
type Config struct {
	// Disabled is the kill switch, checked at the start of every run so
	// sweeps stop without a redeploy. A no-op success when it reports true.
	Disabled    func() bool
	SearchLimit int
	ListLimit   int
}

// Summary is the result of one sweep run.
type Summary struct {
	Disabled     bool `json:"disabled,omitempty"`
	Scanned      int  `json:"scanned"`
	Completed    int  `json:"completed"`
	StillPending int  `json:"still_pending"`
	Failed       int  `json:"failed"`
	Skipped      int  `json:"skipped"`
	Errors       int  `json:"errors"`
	ListFallback bool `json:"list_fallback,omitempty"`
}

// Service runs sweep passes over pending payment intents.
type Service struct {
	provider  transfer.Provider
	transfers *transfer.Service
	table     *routing.Table
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a sweeper.
func NewService(provider transfer.Provider, transfers *transfer.Service, table *routing.Table, cfg Config, logger *slog.Logger) *Service {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 25
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 100
	}
	return &Service{
		provider:  provider,
		transfers: transfers,
		table:     table,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one sweep. A non-nil error means the sweep itself could not
// run; per-payment failures are isolated and only counted in the summary.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	if s.cfg.Disabled != nil && s.cfg.Disabled() {
		s.logger.Info("retry sweep disabled by kill switch")
		return &Summary{Disabled: true}, nil
	}

	intents, usedFallback, err := s.pendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying pending intents: %w", err)
	}

	summary := &Summary{Scanned: len(intents), ListFallback: usedFallback}
	for _, intent := range intents {
		s.retryOne(ctx, intent, summary)
	}

	s.logger.Info("retry sweep complete",
		"scanned", summary.Scanned,
		"completed", summary.Completed,
		"still_pending", summary.StillPending,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"list_fallback", summary.ListFallback,
	)
	return summary, nil
}

// pendingIntents prefers the provider's server-side metadata search and
// falls back to a bounded list with client-side filtering when search is
// degraded. The fallback trades completeness for availability.
func (s *Service) pendingIntents(ctx context.Context) ([]*transfer.PaymentIntent, bool, error) {
	intents, err := s.provider.SearchPendingIntents(ctx, s.cfg.SearchLimit)
	if err == nil {
		return intents, false, nil
	}
	s.logger.Warn("pending intent search failed, falling back to list", "error", err)

	all, err := s.provider.ListIntents(ctx, s.cfg.ListLimit)
	if err != nil {
		return nil, false, err
	}

	var pending []*transfer.PaymentIntent
	for _, intent := range all {
		if intent.TransferStatus() == transfer.StatusPending {
			pending = append(pending, intent)
		}
	}
	return pending, true, nil
}

func (s *Service) retryOne(ctx context.Context, intent *transfer.PaymentIntent, summary *Summary) {
	destination := intent.Metadata[transfer.MetaDestination]
	amount, _ := strconv.ParseInt(intent.Metadata[transfer.MetaAmount], 10, 64)

	if destination == "" || amount <= 0 {
		s.logger.Warn("pending intent missing retry metadata",
			"payment_intent", intent.ID,
			"destination", destination,
			"amount", amount,
		)
		summary.Skipped++
		return
	}
	// Raced with a concurrent webhook delivery that already finished.
	if intent.TransferStatus() == transfer.StatusDone {
		summary.Skipped++
		return
	}

	result, err := s.transfers.Execute(ctx, transfer.Attempt{
		Intent:      intent,
		Amount:      amount,
		Currency:    s.table.NormalizeCurrency(intent.Currency),
		Destination: destination,
		Retry:       true,
	})
	if err != nil {
		// Isolated: keep sweeping the remaining candidates.
		s.logger.Error("retry attempt errored", "payment_intent", intent.ID, "error", err)
		summary.Errors++
		return
	}

	switch result.Outcome {
	case transfer.OutcomeCompleted:
		summary.Completed++
	case transfer.OutcomePending:
		summary.StillPending++
	case transfer.OutcomeFailed:
		summary.Failed++
	default:
		// Already done or claimed by a concurrent attempt; the next sweep
		// picks the payment up again if it is still pending.
		summary.Skipped++
	}
}

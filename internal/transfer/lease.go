package transfer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultLeaseTTL bounds how long a crashed attempt can hold the lease
// before another path may claim the payment.
const DefaultLeaseTTL = 90 * time.Second

// lease is an in-flight marker written to the intent's metadata so that the
// webhook and sweeper paths act as a single writer per payment. Encoded as
// "<token>.<unix-seconds>".
type lease struct {
	token    string
	issuedAt time.Time
}

func (l lease) encode() string {
	return l.token + "." + strconv.FormatInt(l.issuedAt.Unix(), 10)
}

func parseLease(value string) (lease, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 {
		return lease{}, false
	}
	secs, err := strconv.ParseInt(value[i+1:], 10, 64)
	if err != nil {
		return lease{}, false
	}
	return lease{token: value[:i], issuedAt: time.Unix(secs, 0)}, true
}

func (l lease) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.issuedAt) >= ttl
}

// acquireLease claims the payment for this attempt. It writes a fresh lease
// marker and re-reads the intent: whichever writer's token survives owns the
// payment. Returns the fresh intent so the caller sees current state.
func (s *Service) acquireLease(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, bool, error) {
	now := s.now()

	if existing, ok := parseLease(intent.Metadata[MetaLease]); ok && !existing.expired(now, s.leaseTTL) {
		return intent, false, nil
	}

	mine := lease{token: ulid.Make().String(), issuedAt: now}
	if _, err := s.provider.UpdateMetadata(ctx, intent.ID, map[string]string{MetaLease: mine.encode()}); err != nil {
		return nil, false, fmt.Errorf("writing transfer lease: %w", err)
	}

	fresh, err := s.provider.GetPaymentIntent(ctx, intent.ID)
	if err != nil {
		return nil, false, fmt.Errorf("re-reading intent after lease write: %w", err)
	}

	current, ok := parseLease(fresh.Metadata[MetaLease])
	if !ok || current.token != mine.token {
		return fresh, false, nil
	}
	return fresh, true, nil
}

// releaseLease clears the in-flight marker without touching other metadata.
func (s *Service) releaseLease(ctx context.Context, paymentID string) {
	if _, err := s.provider.UpdateMetadata(ctx, paymentID, map[string]string{MetaLease: ""}); err != nil {
		s.logger.Error("failed to release transfer lease",
			"payment_intent", paymentID,
			"error", err,
		)
	}
}

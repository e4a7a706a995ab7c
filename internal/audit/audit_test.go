package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrouter/internal/common/events"
	"payrouter/internal/common/middleware"
	"payrouter/internal/transfer"
)

func sampleTransition() transfer.Transition {
	return transfer.Transition{
		PaymentID:   "pi_123",
		From:        transfer.StatusPending,
		To:          transfer.StatusDone,
		Destination: "acct_1PLeeD2cX2VXbuJd",
		AmountMinor: 5000,
		Currency:    "gbp",
		Retry:       true,
		At:          time.Now().UTC(),
	}
}

type stubRecorder struct {
	calls int
	err   error
}

func (s *stubRecorder) Record(ctx context.Context, t transfer.Transition) error {
	s.calls++
	return s.err
}

func TestMulti_RecordsToAll(t *testing.T) {
	a := &stubRecorder{}
	b := &stubRecorder{}

	err := Multi(a, b).Record(context.Background(), sampleTransition())
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestMulti_FailureDoesNotStopOthers(t *testing.T) {
	a := &stubRecorder{err: errors.New("nats down")}
	b := &stubRecorder{}

	err := Multi(a, b).Record(context.Background(), sampleTransition())
	require.Error(t, err)
	assert.Equal(t, 1, b.calls)
}

type capturePublisher struct {
	events []*events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func TestNATSRecorder_PublishesTransitionEvent(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewNATSRecorder(pub)

	require.NoError(t, rec.Record(context.Background(), sampleTransition()))
	require.Len(t, pub.events, 1)

	event := pub.events[0]
	assert.Equal(t, events.EventTransferCompleted, event.Type)
	assert.Equal(t, events.AggregatePaymentIntent, event.AggregateType)
	assert.Equal(t, "pi_123", event.AggregateID)

	var decoded transfer.Transition
	require.NoError(t, event.DecodeData(&decoded))
	assert.Equal(t, transfer.StatusDone, decoded.To)
	assert.Equal(t, int64(5000), decoded.AmountMinor)
}

func TestNATSRecorder_CarriesCorrelationID(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewNATSRecorder(pub)

	ctx := context.WithValue(context.Background(), middleware.CorrelationIDKey, "corr-42")
	require.NoError(t, rec.Record(ctx, sampleTransition()))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "corr-42", pub.events[0].CorrelationID)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, events.EventTransferCompleted, eventType(transfer.StatusDone))
	assert.Equal(t, events.EventTransferPending, eventType(transfer.StatusPending))
	assert.Equal(t, events.EventTransferFailed, eventType(transfer.StatusFailed))
}

type captureQuerier struct {
	sql  string
	args []interface{}
	err  error
}

func (q *captureQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q.sql = sql
	q.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), q.err
}

func (q *captureQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *captureQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func TestPostgresRecorder_InsertsTransition(t *testing.T) {
	q := &captureQuerier{}
	rec := NewPostgresRecorder(q)

	tr := sampleTransition()
	require.NoError(t, rec.Record(context.Background(), tr))

	assert.Contains(t, q.sql, "INSERT INTO transfer_transitions")
	require.Len(t, q.args, 9)
	assert.Equal(t, "pi_123", q.args[0])
	assert.Equal(t, string(transfer.StatusPending), q.args[1])
	assert.Equal(t, string(transfer.StatusDone), q.args[2])
	assert.Equal(t, int64(5000), q.args[4])
}

func TestPostgresRecorder_WrapsExecError(t *testing.T) {
	q := &captureQuerier{err: errors.New("connection reset")}
	rec := NewPostgresRecorder(q)

	err := rec.Record(context.Background(), sampleTransition())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting transfer transition")
}

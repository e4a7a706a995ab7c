package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v74"

	"payrouter/internal/transfer"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the same way Stripe does:
// HMAC-SHA256 of "<timestamp>.<payload>" keyed with the webhook secret.
func signPayload(payload []byte, at time.Time, secret string) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testAdapter() *Adapter {
	return NewAdapter(Config{
		SecretKey:     "sk_test_key",
		WebhookSecret: testWebhookSecret,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerifyEvent_ValidSignature(t *testing.T) {
	payload := []byte(`{
		"id": "evt_abc",
		"api_version": "2022-11-15",
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_123",
				"amount": 5000,
				"amount_received": 5000,
				"currency": "gbp",
				"description": "Leeds tattoo consultation",
				"metadata": {"transfer_status": "pending"}
			}
		}
	}`)
	adapter := testAdapter()

	event, err := adapter.VerifyEvent(payload, signPayload(payload, time.Now(), testWebhookSecret))
	require.NoError(t, err)

	assert.Equal(t, "evt_abc", event.ID)
	assert.Equal(t, transfer.EventPaymentSucceeded, event.Type)
	require.NotNil(t, event.PaymentIntent)
	assert.Equal(t, "pi_123", event.PaymentIntent.ID)
	assert.Equal(t, int64(5000), event.PaymentIntent.Amount)
	assert.Equal(t, "gbp", event.PaymentIntent.Currency)
	assert.Equal(t, "Leeds tattoo consultation", event.PaymentIntent.Description)
	assert.Equal(t, transfer.StatusPending, event.PaymentIntent.TransferStatus())
}

func TestVerifyEvent_OtherEventTypesCarryNoIntent(t *testing.T) {
	payload := []byte(`{"id": "evt_ref", "api_version": "2022-11-15", "type": "charge.refunded", "data": {"object": {}}}`)
	adapter := testAdapter()

	event, err := adapter.VerifyEvent(payload, signPayload(payload, time.Now(), testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", event.Type)
	assert.Nil(t, event.PaymentIntent)
}

func TestVerifyEvent_WrongSecret(t *testing.T) {
	payload := []byte(`{"id": "evt_abc", "type": "payment_intent.succeeded"}`)
	adapter := testAdapter()

	_, err := adapter.VerifyEvent(payload, signPayload(payload, time.Now(), "whsec_other"))
	assert.Error(t, err)
}

func TestVerifyEvent_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id": "evt_abc", "type": "payment_intent.succeeded"}`)
	adapter := testAdapter()
	header := signPayload(payload, time.Now(), testWebhookSecret)

	tampered := []byte(`{"id": "evt_abc", "type": "payment_intent.succeeded", "x": 1}`)
	_, err := adapter.VerifyEvent(tampered, header)
	assert.Error(t, err)
}

func TestVerifyEvent_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id": "evt_abc", "type": "payment_intent.succeeded"}`)
	adapter := testAdapter()

	_, err := adapter.VerifyEvent(payload, signPayload(payload, time.Now().Add(-time.Hour), testWebhookSecret))
	assert.Error(t, err)
}

func TestMapErr(t *testing.T) {
	t.Run("lifts structured stripe errors", func(t *testing.T) {
		in := &stripesdk.Error{Code: stripesdk.ErrorCodeBalanceInsufficient, Msg: "insufficient available balance"}
		out := mapErr(in)

		var perr *transfer.ProviderError
		require.ErrorAs(t, out, &perr)
		assert.Equal(t, transfer.CodeBalanceInsufficient, perr.Code)
		assert.Equal(t, "insufficient available balance", perr.Message)
	})

	t.Run("passes through plain errors", func(t *testing.T) {
		in := fmt.Errorf("network down")
		assert.Equal(t, in, mapErr(in))
	})
}

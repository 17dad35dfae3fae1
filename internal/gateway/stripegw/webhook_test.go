package stripegw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const succeededEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "payment_intent.succeeded",
  "data": {"object": {"id": "pi_1", "object": "payment_intent", "status": "succeeded", "amount": 1000, "currency": "usd"}}
}`

func TestVerify(t *testing.T) {
	t.Parallel()

	v := NewWebhookVerifier(testSecret)
	now := time.Now()

	cases := []struct {
		name      string
		payload   string
		signature string
		wantErr   error
	}{
		{name: "valid", payload: succeededEvent, signature: sign([]byte(succeededEvent), testSecret, now)},
		{name: "wrong secret", payload: succeededEvent, signature: sign([]byte(succeededEvent), "other", now), wantErr: domain.ErrInvalidSignature},
		{name: "missing header", payload: succeededEvent, signature: "", wantErr: domain.ErrInvalidSignature},
		{name: "garbage header", payload: succeededEvent, signature: "nonsense", wantErr: domain.ErrInvalidSignature},
		{name: "too old", payload: succeededEvent, signature: sign([]byte(succeededEvent), testSecret, now.Add(-time.Hour)), wantErr: domain.ErrInvalidSignature},
		{name: "bad json", payload: "{not json", signature: sign([]byte("{not json"), testSecret, now), wantErr: domain.ErrInvalidPayload},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			event, err := v.Verify([]byte(tc.payload), tc.signature)
			if tc.wantErr != nil {
				if err != tc.wantErr {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if event.Type != domain.EventPaymentIntentSucceeded || event.Intent.ID != "pi_1" || !event.Intent.Succeeded() {
				t.Fatalf("unexpected event: %+v", event)
			}
		})
	}
}

func TestVerify_EmptySecretRejects(t *testing.T) {
	t.Parallel()

	v := NewWebhookVerifier("")
	if _, err := v.Verify([]byte(succeededEvent), sign([]byte(succeededEvent), "", time.Now())); err != domain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

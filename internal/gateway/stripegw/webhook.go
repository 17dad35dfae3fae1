package stripegw

import (
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// WebhookVerifier проверяет заголовок Stripe-Signature секретом endpoint'а.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier создаёт верификатор. Пустой секрет отклоняет любые события.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify проверяет подпись и разбирает событие payment_intent.*.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (domain.GatewayEvent, error) {
	if v.secret == "" || signature == "" {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return domain.GatewayEvent{}, domain.ErrInvalidSignature
		}
		return domain.GatewayEvent{}, domain.ErrInvalidPayload
	}

	out := domain.GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var object struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return domain.GatewayEvent{}, domain.ErrInvalidPayload
	}
	if object.Object != "payment_intent" {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return domain.GatewayEvent{}, domain.ErrInvalidPayload
	}
	out.Intent = toIntent(&pi)
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

var _ domain.WebhookVerifier = (*WebhookVerifier)(nil)

package fake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Verifier проверяет подпись формата "t=<unix>,v1=<hex hmac-sha256>" над "<t>.<payload>".
// Формат совпадает с заголовком Stripe-Signature.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// NewVerifier создаёт верификатор с допуском 5 минут.
func NewVerifier(secret string) *Verifier {
	return &Verifier{Secret: secret, Tolerance: 5 * time.Minute, Now: time.Now}
}

// Sign подписывает payload на момент at.
func Sign(payload []byte, secret string, at time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), computeSignature(payload, secret, at.Unix()))
}

func computeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID           string            `json:"id"`
			ClientSecret string            `json:"client_secret"`
			Status       string            `json:"status"`
			Amount       int64             `json:"amount"`
			Currency     string            `json:"currency"`
			Customer     string            `json:"customer"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// EventPayload собирает тело события в формате провайдера.
func EventPayload(eventID, eventType string, intent domain.PaymentIntent) []byte {
	var env eventEnvelope
	env.ID = eventID
	env.Type = eventType
	env.Data.Object.ID = intent.ID
	env.Data.Object.ClientSecret = intent.ClientSecret
	env.Data.Object.Status = intent.Status
	env.Data.Object.Amount = intent.AmountMinor
	env.Data.Object.Currency = intent.Currency
	env.Data.Object.Customer = intent.CustomerID
	env.Data.Object.Metadata = intent.Metadata
	payload, _ := json.Marshal(env)
	return payload
}

func (v *Verifier) Verify(payload []byte, signature string) (domain.GatewayEvent, error) {
	if v.Secret == "" {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	var (
		ts         int64
		candidates []string
		haveTS     bool
	)
	for _, part := range strings.Split(signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return domain.GatewayEvent{}, domain.ErrInvalidSignature
			}
			ts, haveTS = parsed, true
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if !haveTS || len(candidates) == 0 {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	expected := computeSignature(payload, v.Secret, ts)
	matched := false
	for _, c := range candidates {
		if hmac.Equal([]byte(c), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if v.Tolerance > 0 && now().Sub(time.Unix(ts, 0)) > v.Tolerance {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.GatewayEvent{}, domain.ErrInvalidPayload
	}
	obj := env.Data.Object
	return domain.GatewayEvent{
		ID:   env.ID,
		Type: env.Type,
		Intent: domain.PaymentIntent{
			ID:           obj.ID,
			ClientSecret: obj.ClientSecret,
			Status:       obj.Status,
			AmountMinor:  obj.Amount,
			Currency:     obj.Currency,
			CustomerID:   obj.Customer,
			Metadata:     obj.Metadata,
		},
	}, nil
}

var _ domain.WebhookVerifier = (*Verifier)(nil)

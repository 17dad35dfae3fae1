// Package idempotency защищает мутирующие запросы от повторного выполнения
// по заголовку Idempotency-Key и чистит просроченные ключи.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — срок хранения сохранённого ответа.
const DefaultTTL = 24 * time.Hour

// Ошибки повторного запроса.
var (
	ErrKeyReused  = errors.New("idempotency key is already used with different request payload")
	ErrInProgress = errors.New("request with the same idempotency key is already processing")
)

// Response — сохранённый ответ, который отдаётся при повторе.
type Response struct {
	Status int
	Body   []byte
}

// Guard фиксирует ключ до выполнения запроса и сохраняет ответ после.
type Guard struct {
	repo domain.IdempotencyRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewGuard создаёт Guard. ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{repo: repo, ttl: ttl, now: time.Now}
}

// RequestHash строит отпечаток запроса: метод, путь, пользователь и тело.
func RequestHash(method, path, subject string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), []byte(subject)} {
		h.Write(part)
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin резервирует ключ. Если запрос уже завершён, возвращает сохранённый
// ответ и replay == true; вызывающий должен отдать его без выполнения обработчика.
func (g *Guard) Begin(ctx context.Context, key, hash string) (resp Response, replay bool, err error) {
	record, err := g.repo.CreateProcessing(ctx, key, hash, g.now().UTC().Add(g.ttl))
	switch {
	case err == nil:
		return Response{}, false, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, ErrKeyReused
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			return Response{Status: status, Body: record.ResponseBody}, true, nil
		default:
			return Response{}, false, ErrInProgress
		}
	default:
		return Response{}, false, err
	}
}

// Finish сохраняет ответ. Ответы 5xx помечаются failed: повтор вернёт ту же ошибку до истечения TTL.
func (g *Guard) Finish(ctx context.Context, key string, resp Response) error {
	if resp.Status >= http.StatusInternalServerError {
		return g.repo.MarkFailed(ctx, key, resp.Body, resp.Status)
	}
	return g.repo.MarkDone(ctx, key, resp.Body, resp.Status)
}

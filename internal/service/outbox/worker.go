// Package outbox доставляет сообщения transactional outbox во внешний брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Config задаёт параметры relay.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	return c
}

// Option настраивает Relay.
type Option func(*Relay)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeadLetter задаёт publisher для сообщений, исчерпавших попытки.
func WithDeadLetter(publisher domain.OutboxPublisher) Option {
	return func(r *Relay) { r.deadLetter = publisher }
}

// WithMetrics подключает метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay периодически забирает pending-сообщения и публикует их.
// Доставка at-least-once: сообщение помечается sent только после успешного Publish.
type Relay struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	cfg        Config
	logger     *log.Entry
	metrics    *metrics.WorkerMetrics
	now        func() time.Time
}

// NewRelay создаёт relay поверх autocommit-репозитория outbox.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    log.WithField("component", "outbox-relay"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run опрашивает outbox до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain обрабатывает один батч и возвращает число доставленных сообщений.
func (r *Relay) Drain(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer r.refreshBacklog(ctx)

	batch, err := r.repo.PullPending(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	delivered := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := r.logger.WithFields(log.Fields{
			"outbox_id":      msg.ID,
			"aggregate_type": msg.AggregateType,
			"event_type":     msg.EventType,
		})

		if err := r.publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Остановка: сообщение остаётся pending и уйдёт при следующем запуске.
				break
			}
			entry.WithError(err).Error("outbox publish failed after retries")
			r.metrics.RecordOutboxPublish("failed")
			r.toDeadLetter(ctx, msg, err, entry)
			if markErr := r.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				entry.WithError(markErr).Warn("failed to mark outbox message as failed")
			}
			continue
		}

		if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Relay) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = r.publisher.Publish(ctx, msg)
		if lastErr == nil {
			r.metrics.RecordOutboxPublish("sent")
			return nil
		}
		r.metrics.RecordOutboxPublish("retry_error")

		if attempt == r.cfg.MaxAttempts {
			break
		}
		if delay := backoff(r.cfg.RetryBaseDelay, attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

func (r *Relay) toDeadLetter(ctx context.Context, msg domain.OutboxMessage, cause error, entry *log.Entry) {
	if r.deadLetter == nil {
		return
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(msg.Payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	body, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Error:         cause.Error(),
		FailedAt:      r.now().UTC(),
	})
	if err == nil {
		dead := msg
		dead.Payload = body
		err = r.deadLetter.Publish(ctx, dead)
	}
	if err != nil {
		entry.WithError(err).Warn("failed to publish outbox message to dead letter")
		r.metrics.RecordOutboxPublish("dlq_failed")
	}
}

func (r *Relay) refreshBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	r.metrics.SetOutboxBacklog(stats.PendingCount, stats.OldestPendingAt, r.now())
}

// backoff возвращает base·2^(attempt-1) с защитой от переполнения.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	const maxDelay = time.Duration(1<<63 - 1)
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return delay
}

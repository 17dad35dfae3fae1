package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// messaging — publishers для relay outbox и закрытие producer.
type messaging struct {
	publisher  domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	producer   *kafka.Producer
}

// initMessaging создаёт Kafka producer, если заданы brokers.
// Без брокеров (или при ошибке подключения) события outbox только логируются.
func initMessaging(cfg Config, logger *log.Entry) messaging {
	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not set, outbox events will be logged only")
		return loggingMessaging(logger)
	}

	producer, err := kafka.NewProducer(kafka.Config{Brokers: brokers, ClientID: cfg.KafkaClientID}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return loggingMessaging(logger)
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return messaging{
		publisher:  kafka.NewOutboxPublisher(producer),
		deadLetter: kafka.NewDeadLetterPublisher(producer),
		producer:   producer,
	}
}

func loggingMessaging(logger *log.Entry) messaging {
	pub := &logPublisher{logger: logger.WithField("component", "outbox-log")}
	return messaging{publisher: pub, deadLetter: pub}
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// closeKafka закрывает Kafka producer если он не nil.
func (m messaging) closeKafka(logger *log.Entry) {
	if m.producer == nil {
		return
	}

	if err := m.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события outbox в лог вместо брокера.
type logPublisher struct {
	logger *log.Entry
}

func (p *logPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      msg.ID,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"event_type":     msg.EventType,
		"topic":          kafka.TopicFor(msg.AggregateType),
	}).Info("outbox event")
	return nil
}

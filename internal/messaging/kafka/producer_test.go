package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestProducer_SendAddsHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			t.Errorf("unexpected key %s", key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			t.Errorf("unexpected headers %+v", msg.Headers)
		}
		return nil
	})

	producer := newProducer(mockProducer, nil)
	if err := producer.Send(context.Background(), TopicOrderEvents, "42", []byte(`{}`), map[string]string{
		HeaderEventType: "OrderCreated",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := newProducer(mockProducer, nil)
	if err := producer.Send(context.Background(), TopicOrderEvents, "42", nil, nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendSkipsCancelledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	producer := newProducer(mockProducer, nil)
	if err := producer.Send(ctx, TopicOrderEvents, "42", nil, nil); err == nil {
		t.Fatal("expected context error")
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(Config{}, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

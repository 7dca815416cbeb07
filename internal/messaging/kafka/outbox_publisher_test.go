package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		env, err := ParseEnvelope(val)
		if err != nil {
			return err
		}
		if env.EventType != EventTypeOrderCreated {
			return fmt.Errorf("unexpected event type %q", env.EventType)
		}
		event, err := ParseOrderEvent(env)
		if err != nil {
			return err
		}
		if event.OrderID != "order-123" || event.AmountMinor != 3000 || len(event.Lines) != 1 {
			return fmt.Errorf("unexpected payload %+v", event)
		}
		return nil
	})

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "OrderCreated",
		Payload:       []byte(`{"order_id":"order-123","customer_id":"C1","amount_minor":3000,"lines":[{"product_id":"P1","quantity":3,"price_minor":1000}]}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-234",
		EventType:     "OrderStockUpdateFailed",
		Payload:       []byte(`{"order_id":"order-234"}`),
	})
	if !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected producer error to be wrapped, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestDLQPublisher_UsesDeadLetterTopic(t *testing.T) {
	t.Parallel()

	publisher := NewDLQPublisher(nil)
	topicPublisher, ok := publisher.(*OutboxTopicPublisher)
	if !ok {
		t.Fatalf("unexpected publisher type %T", publisher)
	}
	if topicPublisher.topic != TopicDeadLetterQueue {
		t.Fatalf("expected topic %s, got %s", TopicDeadLetterQueue, topicPublisher.topic)
	}
}

func TestEventTypeFromOutbox(t *testing.T) {
	t.Parallel()

	cases := map[string]EventType{
		"OrderCreated":           EventTypeOrderCreated,
		"OrderStockUpdateFailed": EventTypeOrderStockUpdateFailed,
		"Something":              EventTypeUnknown,
	}
	for in, want := range cases {
		if got := EventTypeFromOutbox(in); got != want {
			t.Fatalf("EventTypeFromOutbox(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	t.Parallel()

	if _, err := ParseEnvelope([]byte("{")); err == nil {
		t.Fatal("expected ParseEnvelope error")
	}
	if _, err := ParseOrderEvent(nil); err == nil {
		t.Fatal("expected ParseOrderEvent error for nil envelope")
	}
	if _, err := ParseOrderEvent(&Envelope{Payload: []byte("[")}); err == nil {
		t.Fatal("expected ParseOrderEvent error for invalid payload")
	}
}

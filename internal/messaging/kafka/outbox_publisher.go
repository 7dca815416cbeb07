package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewDLQPublisher создаёт паблишер в Dead Letter Queue.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return NewOutboxPublisher(producer, TopicDeadLetterQueue)
}

// Publish оборачивает сообщение в Envelope. Ключ сообщения: ID заказа,
// поэтому события одного заказа попадают в одну партицию.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := Envelope{
		ID:            event.ID,
		EventType:     EventTypeFromOutbox(event.EventType),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.now(),
	}

	headers := map[string]string{
		HeaderEventType:     string(envelope.EventType),
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}

	if err := p.producer.PublishEvent(p.topic, key, envelope, headers); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

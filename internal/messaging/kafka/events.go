package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType определяет тип события в Kafka.
type EventType string

const (
	EventTypeOrderCreated           EventType = "order.created"
	EventTypeOrderStockUpdateFailed EventType = "order.stock_update_failed"
	EventTypeUnknown                EventType = "unknown"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ordering.order.events"
	TopicDeadLetterQueue = "ordering.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// outboxEventTypes сопоставляет типы outbox-событий с типами событий в Kafka.
var outboxEventTypes = map[string]EventType{
	"OrderCreated":           EventTypeOrderCreated,
	"OrderStockUpdateFailed": EventTypeOrderStockUpdateFailed,
}

// EventTypeFromOutbox возвращает тип Kafka-события для типа outbox-сообщения.
func EventTypeFromOutbox(outboxType string) EventType {
	if t, ok := outboxEventTypes[outboxType]; ok {
		return t
	}
	return EventTypeUnknown
}

// OrderLine описывает позицию заказа в событии.
type OrderLine struct {
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderEvent содержит полезную нагрузку событий заказа.
type OrderEvent struct {
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	AmountMinor int64       `json:"amount_minor"`
	Lines       []OrderLine `json:"lines"`
	Reason      string      `json:"reason,omitempty"`
}

// Envelope оборачивает сообщение, публикуемое в topic событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// ParseEnvelope разбирает конверт события.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// ParseOrderEvent разбирает полезную нагрузку события заказа из конверта.
func ParseOrderEvent(env *Envelope) (*OrderEvent, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope is nil")
	}
	var event OrderEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventStockAdjusted      EventType = "stock.adjusted"
	EventAssignmentCreated  EventType = "assignment.created"
	EventAssignmentReleased EventType = "assignment.released"
	EventItemStatusChanged  EventType = "item.status_changed"
)

// LedgerEvent — сообщение для аудита/отчётности о закоммиченном изменении склада.
type LedgerEvent struct {
	Type       EventType `json:"type"`
	ProductID  uuid.UUID `json:"product_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor,omitempty"`

	OperationType    string `json:"operation_type,omitempty"`
	Delta            int32  `json:"delta,omitempty"`
	BulkPoolCount    int32  `json:"bulk_pool_count"`
	TrackedItemCount int32  `json:"tracked_item_count"`
	Reason           string `json:"reason,omitempty"`

	AssignmentID *uuid.UUID `json:"assignment_id,omitempty"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	Kind         string     `json:"kind,omitempty"`
	Quantity     int32      `json:"quantity,omitempty"`
	StartDate    string     `json:"start_date,omitempty"`
	EndDate      string     `json:"end_date,omitempty"`

	ItemID *uuid.UUID `json:"item_id,omitempty"`
	Status string     `json:"status,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type LedgerProducer struct {
	writer  messageWriter
	timeout time.Duration
}

func NewLedgerProducer(brokers []string, topic string) *LedgerProducer {
	return &LedgerProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: 5 * time.Second,
	}
}

// BuildMessages keys every message by product id so events of one product
// stay ordered within a partition.
func BuildMessages(events ...LedgerEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.ProductID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
			Time: ev.OccurredAt,
		})
	}
	return msgs, nil
}

func (p *LedgerProducer) Publish(ctx context.Context, events ...LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := BuildMessages(events...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *LedgerProducer) Close() error {
	return p.writer.Close()
}

package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/notify"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEvent is the JSON value written for every order event.
type OrderEvent struct {
	EventType      string          `json:"event_type"`
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	Items          []EventItem     `json:"items,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type EventItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// KafkaSink publishes order events keyed by order id, so every event of one
// order lands on the same partition.
type KafkaSink struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaSink(topic string, brokers ...string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewKafkaSinkWithWriter(w)
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w, now: time.Now}
}

func (s *KafkaSink) Name() string          { return "kafka" }
func (s *KafkaSink) Channel() string       { return domain.ChannelEvent }
func (s *KafkaSink) Handles(_ string) bool { return true }
func (s *KafkaSink) Close() error          { return s.writer.Close() }

func (s *KafkaSink) Notify(ctx context.Context, ev notify.Event) error {
	payload, err := json.Marshal(s.event(ev))
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.Order.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) event(ev notify.Event) OrderEvent {
	o := ev.Order
	out := OrderEvent{
		EventType:      ev.Type,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PreviousStatus: string(ev.Previous),
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		OccurredAt:     s.now().UTC(),
	}
	if ev.Type == notify.EventOrderPlaced {
		for _, item := range o.Items {
			out.Items = append(out.Items, EventItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
	}
	return out
}

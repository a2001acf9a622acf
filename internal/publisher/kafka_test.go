package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/notify"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type fakeWriter struct {
	m        sync.Mutex
	messages []kafkaGo.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:          "order-42",
		OrderNumber: "YJ-20240315-DEADBEEF",
		UserID:      "user-1",
		Items: []domain.OrderItem{
			{ProductID: "ring-1", Quantity: 3, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(300)},
		},
		TotalAmount: decimal.NewFromInt(300),
		Currency:    "INR",
		Status:      domain.OrderStatusPending,
	}
}

func headerValue(msg kafkaGo.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSink_OrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)
	fixed := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	err := sink.Notify(context.Background(), notify.Event{Type: notify.EventOrderPlaced, Order: sampleOrder()})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "order-42", string(msg.Key))
	assert.Equal(t, notify.EventOrderPlaced, headerValue(msg, "event_type"))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "YJ-20240315-DEADBEEF", ev.OrderNumber)
	assert.Equal(t, "pending", ev.Status)
	assert.Empty(t, ev.PreviousStatus)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, 3, ev.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(300).Equal(ev.TotalAmount))
	assert.Equal(t, fixed, ev.OccurredAt)
}

func TestKafkaSink_StatusChanged(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)

	order := sampleOrder()
	order.Status = domain.OrderStatusShipped
	err := sink.Notify(context.Background(), notify.Event{Type: notify.EventStatusChanged, Order: order, Previous: domain.OrderStatusConfirmed})
	require.NoError(t, err)

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &ev))
	assert.Equal(t, "shipped", ev.Status)
	assert.Equal(t, "confirmed", ev.PreviousStatus)
	assert.Empty(t, ev.Items)
	assert.Equal(t, notify.EventStatusChanged, headerValue(w.messages[0], "event_type"))

	assert.True(t, sink.Handles(notify.EventOrderPlaced))
	assert.Equal(t, domain.ChannelEvent, sink.Channel())
	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	sink := NewKafkaSinkWithWriter(w)

	err := sink.Notify(context.Background(), notify.Event{Type: notify.EventOrderPlaced, Order: sampleOrder()})
	assert.EqualError(t, err, "leader not available")
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}
	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestKafkaSink_PublishesToBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, "order-events")
	time.Sleep(5 * time.Second)

	sink := NewKafkaSinkWithWriter(&kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        "order-events",
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, sink.Notify(ctx, notify.Event{Type: notify.EventOrderPlaced, Order: sampleOrder()}))

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    "order-events",
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-42", string(msg.Key))
	assert.Equal(t, notify.EventOrderPlaced, headerValue(msg, "event_type"))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "user-1", ev.UserID)
}

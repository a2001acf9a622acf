package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	EventOrderPlaced   = "order.placed"
	EventStatusChanged = "order.status_changed"
)

var deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jewel_notification_deliveries_total",
	Help: "Notification attempts per sink by outcome.",
}, []string{"sink", "result"})

// Event is what a sink is asked to deliver.
type Event struct {
	Type     string
	Order    *domain.Order
	Previous domain.OrderStatus
}

// Sink is one notification destination.
type Sink interface {
	Name() string
	Channel() string
	Handles(eventType string) bool
	Notify(ctx context.Context, ev Event) error
}

// Recorder persists delivery outcomes. Optional.
type Recorder interface {
	RecordDeliveries(ctx context.Context, deliveries []domain.Delivery) error
}

type Config struct {
	SendTimeout        time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Notifier delivers each event to every interested sink concurrently. A sink
// failing or hanging never affects the others; every attempt produces a
// Delivery.
type Notifier struct {
	sinks    []Sink
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	cfg      Config
	recorder Recorder
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewNotifier(cfg Config, log *logger.Logger, recorder Recorder, sinks ...Sink) *Notifier {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 8 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = time.Minute
	}

	n := &Notifier{
		sinks:    sinks,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}], len(sinks)),
		cfg:      cfg,
		recorder: recorder,
		log:      log.With("component", "notifier"),
		tracer:   otel.Tracer("github.com/fjod/jewel_cart/internal/notify"),
		now:      time.Now,
	}
	for _, s := range sinks {
		n.breakers[s.Name()] = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    s.Name(),
			Timeout: cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				n.log.Warn("sink breaker state changed", "sink", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return n
}

func (n *Notifier) OrderPlaced(ctx context.Context, order *domain.Order) []domain.Delivery {
	return n.dispatch(ctx, Event{Type: EventOrderPlaced, Order: order})
}

func (n *Notifier) StatusChanged(ctx context.Context, order *domain.Order, previous domain.OrderStatus) []domain.Delivery {
	return n.dispatch(ctx, Event{Type: EventStatusChanged, Order: order, Previous: previous})
}

func (n *Notifier) dispatch(ctx context.Context, ev Event) []domain.Delivery {
	var targets []Sink
	for _, s := range n.sinks {
		if s.Handles(ev.Type) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	deliveries := make([]domain.Delivery, len(targets))
	// plain Group: one sink failing must not cancel its siblings
	var g errgroup.Group
	for i, sink := range targets {
		g.Go(func() error {
			deliveries[i] = n.deliver(ctx, sink, ev)
			return nil
		})
	}
	_ = g.Wait()

	if n.recorder != nil {
		if err := n.recorder.RecordDeliveries(ctx, deliveries); err != nil {
			n.log.Error("failed to record deliveries", "order", ev.Order.OrderNumber, "error", err)
		}
	}
	return deliveries
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, ev Event) (d domain.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()
	ctx, span := n.tracer.Start(ctx, "notify."+sink.Name(), trace.WithAttributes(
		attribute.String("order.number", ev.Order.OrderNumber),
		attribute.String("event.type", ev.Type),
	))
	defer span.End()

	start := n.now()
	d = domain.Delivery{
		OrderID:     ev.Order.ID,
		OrderNumber: ev.Order.OrderNumber,
		Sink:        sink.Name(),
		Channel:     sink.Channel(),
		AttemptedAt: start,
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
		d.DurationMs = n.now().Sub(start).Milliseconds()
		d.OK = err == nil
		result := "success"
		if err != nil {
			result = "failure"
			d.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			n.log.Warn("notification failed", "sink", d.Sink, "order", d.OrderNumber, "event", ev.Type, "error", err)
		} else {
			n.log.Info("notification sent", "sink", d.Sink, "order", d.OrderNumber, "event", ev.Type, "duration_ms", d.DurationMs)
		}
		deliveriesTotal.WithLabelValues(d.Sink, result).Inc()
	}()

	breaker := n.breakers[sink.Name()]
	_, err = breaker.Execute(func() (struct{}, error) {
		return struct{}{}, sink.Notify(ctx, ev)
	})
	return d
}

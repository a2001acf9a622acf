package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/jewel_cart/internal/domain"
)

// OperatorEmailSink mails the shop operator about every new order.
type OperatorEmailSink struct {
	mailer   Mailer
	renderer *Renderer
	to       string
}

func NewOperatorEmailSink(mailer Mailer, renderer *Renderer, operatorEmail string) *OperatorEmailSink {
	return &OperatorEmailSink{mailer: mailer, renderer: renderer, to: operatorEmail}
}

func (s *OperatorEmailSink) Name() string    { return "operator-email" }
func (s *OperatorEmailSink) Channel() string { return domain.ChannelEmail }

func (s *OperatorEmailSink) Handles(eventType string) bool {
	return eventType == EventOrderPlaced
}

func (s *OperatorEmailSink) Notify(ctx context.Context, ev Event) error {
	if strings.TrimSpace(s.to) == "" {
		return fmt.Errorf("operator email not configured")
	}
	html, err := s.renderer.OperatorEmail(ev.Order)
	if err != nil {
		return fmt.Errorf("render operator email: %w", err)
	}
	_, err = s.mailer.Send(ctx, SendEmailRequest{
		To:         []EmailAddress{{Email: s.to}},
		Subject:    fmt.Sprintf("New Order Received - %s", ev.Order.OrderNumber),
		HTML:       html,
		Categories: []string{"order-operator"},
	})
	return err
}

// CustomerEmailSink sends the order confirmation to the shipping address email.
type CustomerEmailSink struct {
	mailer   Mailer
	renderer *Renderer
}

func NewCustomerEmailSink(mailer Mailer, renderer *Renderer) *CustomerEmailSink {
	return &CustomerEmailSink{mailer: mailer, renderer: renderer}
}

func (s *CustomerEmailSink) Name() string    { return "customer-email" }
func (s *CustomerEmailSink) Channel() string { return domain.ChannelEmail }

func (s *CustomerEmailSink) Handles(eventType string) bool {
	return eventType == EventOrderPlaced
}

func (s *CustomerEmailSink) Notify(ctx context.Context, ev Event) error {
	addr := ev.Order.ShippingAddress
	html, err := s.renderer.CustomerEmail(ev.Order)
	if err != nil {
		return fmt.Errorf("render customer email: %w", err)
	}
	_, err = s.mailer.Send(ctx, SendEmailRequest{
		To:         []EmailAddress{{Email: addr.Email, Name: addr.Name}},
		Subject:    fmt.Sprintf("Order Confirmed - %s", ev.Order.OrderNumber),
		HTML:       html,
		Categories: []string{"order-confirmation"},
	})
	return err
}

// ChatSender delivers a text message to a phone number.
type ChatSender interface {
	SendMessage(ctx context.Context, phone, message string) error
}

// WhatsAppSink pings the operator's phone about new orders.
type WhatsAppSink struct {
	sender   ChatSender
	renderer *Renderer
	phone    string
}

func NewWhatsAppSink(sender ChatSender, renderer *Renderer, operatorPhone string) *WhatsAppSink {
	return &WhatsAppSink{sender: sender, renderer: renderer, phone: operatorPhone}
}

func (s *WhatsAppSink) Name() string    { return "whatsapp" }
func (s *WhatsAppSink) Channel() string { return domain.ChannelWhatsApp }

func (s *WhatsAppSink) Handles(eventType string) bool {
	return eventType == EventOrderPlaced
}

func (s *WhatsAppSink) Notify(ctx context.Context, ev Event) error {
	msg, err := s.renderer.ChatMessage(ev.Order)
	if err != nil {
		return fmt.Errorf("render chat message: %w", err)
	}
	return s.sender.SendMessage(ctx, s.phone, msg)
}

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	m    sync.Mutex
	sent []SendEmailRequest
	err  error
}

func (f *fakeMailer) Send(_ context.Context, req SendEmailRequest) (*SendEmailResult, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &SendEmailResult{StatusCode: 202}, nil
}

type fakeChat struct {
	phone   string
	message string
}

func (f *fakeChat) SendMessage(_ context.Context, phone, message string) error {
	f.phone, f.message = phone, message
	return nil
}

func placedOrder() *domain.Order {
	return &domain.Order{
		ID:          "order-1",
		OrderNumber: "YJ-20240315-1A2B3C4D",
		Items: []domain.OrderItem{
			{
				ProductName:       "Solitaire Ring",
				SKU:               "RNG-001",
				CategoryName:      "Rings",
				ImageURL:          "/uploads/ring.jpg",
				Quantity:          2,
				SelectedVariation: &domain.Variation{Type: "gold", Karat: "18k", Color: "rose"},
				Customizations:    map[string]string{"ringSize": "12", "notes": "engrave A&B"},
				UnitPrice:         decimal.NewFromInt(100),
				LineTotal:         decimal.NewFromInt(200),
			},
			{
				ProductName: "Chain",
				SKU:         "CHN-002",
				ImageURL:    "https://cdn.example.com/chain.jpg",
				Quantity:    1,
				UnitPrice:   decimal.NewFromInt(100),
				LineTotal:   decimal.NewFromInt(100),
			},
		},
		TotalAmount: decimal.NewFromInt(300),
		ShippingAddress: domain.ShippingAddress{
			Name: "Asha", Email: "asha@example.com", Phone: "+919800000000",
			Address: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001", Country: "India",
		},
		PaymentMethod: "cod",
		OrderNotes:    "gift wrap",
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderer_OperatorEmail(t *testing.T) {
	r, err := NewRenderer("https://shop.example.com/", "help@example.com")
	require.NoError(t, err)

	html, err := r.OperatorEmail(placedOrder())
	require.NoError(t, err)

	assert.Contains(t, html, "YJ-20240315-1A2B3C4D")
	assert.Contains(t, html, "15 Mar 2024")
	assert.Contains(t, html, `src="https://shop.example.com/uploads/ring.jpg"`)
	assert.Contains(t, html, `src="https://cdn.example.com/chain.jpg"`)
	assert.Contains(t, html, "Metal: gold 18k rose")
	assert.Contains(t, html, "Ring Size: 12")
	assert.Contains(t, html, "engrave A&amp;B")
	assert.Contains(t, html, "Category: N/A")
	assert.Contains(t, html, "Total: ₹300.00")
	assert.Contains(t, html, "Order Notes:</strong> gift wrap")
}

func TestRenderer_CustomerEmailAndChat(t *testing.T) {
	r, err := NewRenderer("", "help@example.com")
	require.NoError(t, err)

	html, err := r.CustomerEmail(placedOrder())
	require.NoError(t, err)
	assert.Contains(t, html, "Dear Asha")
	assert.Contains(t, html, `src="/uploads/ring.jpg"`)
	assert.Contains(t, html, "help@example.com")

	msg, err := r.ChatMessage(placedOrder())
	require.NoError(t, err)
	assert.Contains(t, msg, "Order #: YJ-20240315-1A2B3C4D")
	assert.Contains(t, msg, "Solitaire Ring sku: RNG-001 [gold 18k rose] size 12 (2x) - ₹200.00")
	assert.Contains(t, msg, "Chain sku: CHN-002 (1x) - ₹100.00")
	assert.Contains(t, msg, "*Total:* ₹300.00")
	assert.Contains(t, msg, "*Notes:* gift wrap")
}

func TestEmailSinks(t *testing.T) {
	r, err := NewRenderer("", "")
	require.NoError(t, err)
	mailer := &fakeMailer{}
	ev := Event{Type: EventOrderPlaced, Order: placedOrder()}

	op := NewOperatorEmailSink(mailer, r, "owner@example.com")
	cust := NewCustomerEmailSink(mailer, r)
	require.NoError(t, op.Notify(context.Background(), ev))
	require.NoError(t, cust.Notify(context.Background(), ev))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "owner@example.com", mailer.sent[0].To[0].Email)
	assert.Equal(t, "New Order Received - YJ-20240315-1A2B3C4D", mailer.sent[0].Subject)
	assert.Equal(t, "asha@example.com", mailer.sent[1].To[0].Email)
	assert.Equal(t, "Order Confirmed - YJ-20240315-1A2B3C4D", mailer.sent[1].Subject)

	assert.True(t, op.Handles(EventOrderPlaced))
	assert.False(t, op.Handles(EventStatusChanged))
	assert.Equal(t, domain.ChannelEmail, cust.Channel())

	assert.Error(t, NewOperatorEmailSink(mailer, r, "").Notify(context.Background(), ev))

	mailer.err = errors.New("quota exceeded")
	assert.EqualError(t, cust.Notify(context.Background(), ev), "quota exceeded")
}

func TestWhatsAppSink(t *testing.T) {
	r, err := NewRenderer("", "")
	require.NoError(t, err)
	chat := &fakeChat{}

	sink := NewWhatsAppSink(chat, r, "+919811111111")
	require.NoError(t, sink.Notify(context.Background(), Event{Type: EventOrderPlaced, Order: placedOrder()}))

	assert.Equal(t, "+919811111111", chat.phone)
	assert.Contains(t, chat.message, "*New Order Received!*")
	assert.Equal(t, domain.ChannelWhatsApp, sink.Channel())
}

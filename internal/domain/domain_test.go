package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResolvePrice(t *testing.T) {
	product := &Product{
		RegularPrice: price("1000"),
		SalePrice:    price("900"),
		MetalVariations: []MetalVariation{
			{Type: "gold", Karat: "18k", RegularPrice: price("1500"), SalePrice: price("1400")},
			{Type: "gold", Karat: "14k", RegularPrice: price("1200")},
			{Type: "silver"},
		},
	}

	tests := []struct {
		name      string
		product   *Product
		variation *Variation
		want      string
		ok        bool
	}{
		{"variation sale price", product, &Variation{Type: "gold", Karat: "18k", Color: "rose"}, "1400", true},
		{"variation regular price", product, &Variation{Type: "gold", Karat: "14k"}, "1200", true},
		{"variation without prices falls back to product sale", product, &Variation{Type: "silver"}, "900", true},
		{"unknown variation falls back to product", product, &Variation{Type: "platinum"}, "900", true},
		{"no variation", product, nil, "900", true},
		{"regular only", &Product{RegularPrice: price("250")}, nil, "250", true},
		{"zero sale price ignored", &Product{SalePrice: price("0"), RegularPrice: price("250")}, nil, "250", true},
		{"nothing resolves", &Product{}, nil, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.product.ResolvePrice(tt.variation)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCart_TotalAndLines(t *testing.T) {
	gold := &Variation{Type: "gold", Karat: "18k"}
	cart := &Cart{Items: []CartItem{
		{ID: "a", ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		{ID: "b", ProductID: "p1", Quantity: 1, SelectedVariation: gold, UnitPrice: decimal.NewFromInt(250)},
		{ID: "c", ProductID: "p2", Quantity: 3, UnitPrice: decimal.RequireFromString("10.50")},
	}}

	assert.True(t, decimal.RequireFromString("481.5").Equal(cart.TotalAmount()))
	assert.Equal(t, 0, cart.FindLine("p1", nil))
	assert.Equal(t, 1, cart.FindLine("p1", &Variation{Type: "gold", Karat: "18k"}))
	assert.Equal(t, -1, cart.FindLine("p1", &Variation{Type: "gold", Karat: "18k", Color: "white"}))
	assert.Equal(t, map[string]int{"p1": 3, "p2": 3}, cart.QuantityByProduct())

	assert.True(t, cart.RemoveItem("b"))
	assert.False(t, cart.RemoveItem("b"))
	assert.Len(t, cart.Items, 2)
	assert.True(t, decimal.RequireFromString("231.5").Equal(cart.TotalAmount()))
}

func TestSameVariation(t *testing.T) {
	assert.True(t, SameVariation(nil, nil))
	assert.False(t, SameVariation(nil, &Variation{Type: "gold"}))
	assert.True(t, SameVariation(&Variation{Type: "gold", Karat: "22k"}, &Variation{Type: "gold", Karat: "22k"}))
}

func TestOrderStatus_Transitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	}
	all := []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestOrderStatus_CancelFromAnyNonTerminal(t *testing.T) {
	for _, st := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled} {
		if st.IsTerminal() {
			assert.False(t, st.CanTransitionTo(OrderStatusCancelled), "%s is terminal", st)
			continue
		}
		assert.True(t, st.CanTransitionTo(OrderStatusCancelled), "%s -> cancelled", st)
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus("shipped")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusShipped, st)

	_, ok = ParseOrderStatus("SHIPPED")
	assert.False(t, ok)
}

func TestShippingAddress_MissingFields(t *testing.T) {
	addr := ShippingAddress{Name: "Asha", Email: "asha@example.com", Phone: " ", City: "Pune"}
	assert.Equal(t, []string{"phone", "address", "state", "pincode"}, addr.MissingFields())
}

func TestFlagsFromDeliveries(t *testing.T) {
	flags := FlagsFromDeliveries([]Delivery{
		{Sink: "operator-email", Channel: ChannelEmail, OK: false},
		{Sink: "customer-email", Channel: ChannelEmail, OK: true},
		{Sink: "whatsapp", Channel: ChannelWhatsApp, OK: false},
		{Sink: "kafka", Channel: ChannelEvent, OK: true},
	})
	assert.True(t, flags.EmailSent)
	assert.False(t, flags.WhatsappSent)

	assert.Equal(t, NotificationFlags{}, FlagsFromDeliveries(nil))
}

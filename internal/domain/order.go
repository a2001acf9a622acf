package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID         string            `bson:"product_id" json:"productId"`
	ProductName       string            `bson:"product_name" json:"productName"`
	SKU               string            `bson:"sku" json:"sku"`
	CategoryName      string            `bson:"category_name,omitempty" json:"categoryName,omitempty"`
	ImageURL          string            `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	Quantity          int               `bson:"quantity" json:"quantity"`
	SelectedVariation *Variation        `bson:"selected_variation,omitempty" json:"selectedMetalVariation,omitempty"`
	Customizations    map[string]string `bson:"customizations,omitempty" json:"customizations,omitempty"`
	UnitPrice         decimal.Decimal   `bson:"unit_price" json:"price"`
	LineTotal         decimal.Decimal   `bson:"line_total" json:"total"`
}

type ShippingAddress struct {
	Name    string `bson:"name" json:"name"`
	Email   string `bson:"email" json:"email"`
	Phone   string `bson:"phone" json:"phone"`
	Address string `bson:"address" json:"address"`
	City    string `bson:"city" json:"city"`
	State   string `bson:"state" json:"state"`
	Pincode string `bson:"pincode" json:"pincode"`
	Country string `bson:"country" json:"country"`
}

// MissingFields lists required address fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("name", a.Name)
	check("email", a.Email)
	check("phone", a.Phone)
	check("address", a.Address)
	check("city", a.City)
	check("state", a.State)
	check("pincode", a.Pincode)
	return missing
}

type NotificationFlags struct {
	EmailSent    bool `bson:"email_sent" json:"emailSent"`
	WhatsappSent bool `bson:"whatsapp_sent" json:"whatsappSent"`
}

type Order struct {
	ID              string            `bson:"_id" json:"id"`
	OrderNumber     string            `bson:"order_number" json:"orderNumber"`
	UserID          string            `bson:"user_id" json:"userId"`
	User            *UserSummary      `bson:"-" json:"user,omitempty"`
	Items           []OrderItem       `bson:"items" json:"items"`
	TotalAmount     decimal.Decimal   `bson:"total_amount" json:"totalAmount"`
	Currency        string            `bson:"currency" json:"currency"`
	ShippingAddress ShippingAddress   `bson:"shipping_address" json:"shippingAddress"`
	PaymentMethod   string            `bson:"payment_method" json:"paymentMethod"`
	OrderNotes      string            `bson:"order_notes,omitempty" json:"orderNotes,omitempty"`
	Status          OrderStatus       `bson:"status" json:"status"`
	Notifications   NotificationFlags `bson:"notifications" json:"notifications"`
	CreatedAt       time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updatedAt"`
}

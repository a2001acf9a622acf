package domain

import "time"

// Delivery is the outcome of one notification sink for one order event.
type Delivery struct {
	ID          string    `json:"id,omitempty"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Sink        string    `json:"sink"`
	Channel     string    `json:"channel"`
	OK          bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"durationMs"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelEvent    = "event"
	ChannelLive     = "live"
)

// FlagsFromDeliveries folds per-sink outcomes into order flags: email is sent
// when any email sink succeeded, WhatsApp when the chat sink did.
func FlagsFromDeliveries(deliveries []Delivery) NotificationFlags {
	var flags NotificationFlags
	for _, d := range deliveries {
		if !d.OK {
			continue
		}
		switch d.Channel {
		case ChannelEmail:
			flags.EmailSent = true
		case ChannelWhatsApp:
			flags.WhatsappSent = true
		}
	}
	return flags
}

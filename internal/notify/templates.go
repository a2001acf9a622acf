package notify

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer turns an order into message bodies.
type Renderer struct {
	operator     *htmltemplate.Template
	customer     *htmltemplate.Template
	chat         *texttemplate.Template
	assetBaseURL string
	supportEmail string
	location     *time.Location
}

type messageData struct {
	Order        *domain.Order
	Date         string
	SupportEmail string
}

func NewRenderer(assetBaseURL, supportEmail string) (*Renderer, error) {
	r := &Renderer{
		assetBaseURL: strings.TrimRight(assetBaseURL, "/"),
		supportEmail: supportEmail,
		location:     time.UTC,
	}
	funcs := map[string]any{
		"money":     money,
		"variation": variationLabel,
		"asset":     r.assetURL,
	}

	var err error
	if r.operator, err = htmltemplate.New("operator_email.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/operator_email.html.tmpl"); err != nil {
		return nil, err
	}
	if r.customer, err = htmltemplate.New("customer_email.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/customer_email.html.tmpl"); err != nil {
		return nil, err
	}
	if r.chat, err = texttemplate.New("whatsapp.txt.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/whatsapp.txt.tmpl"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) data(order *domain.Order) messageData {
	return messageData{
		Order:        order,
		Date:         order.CreatedAt.In(r.location).Format("02 Jan 2006"),
		SupportEmail: r.supportEmail,
	}
}

func (r *Renderer) OperatorEmail(order *domain.Order) (string, error) {
	var buf bytes.Buffer
	if err := r.operator.Execute(&buf, r.data(order)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) CustomerEmail(order *domain.Order) (string, error) {
	var buf bytes.Buffer
	if err := r.customer.Execute(&buf, r.data(order)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) ChatMessage(order *domain.Order) (string, error) {
	var buf bytes.Buffer
	if err := r.chat.Execute(&buf, r.data(order)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// assetURL makes stored relative image paths absolute.
func (r *Renderer) assetURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || r.assetBaseURL == "" {
		return path
	}
	return r.assetBaseURL + "/" + strings.TrimLeft(path, "/")
}

func money(d decimal.Decimal) string {
	return "₹" + d.StringFixed(2)
}

func variationLabel(v *domain.Variation) string {
	parts := []string{v.Type}
	if v.Karat != "" {
		parts = append(parts, v.Karat)
	}
	if v.Color != "" {
		parts = append(parts, v.Color)
	}
	return strings.Join(parts, " ")
}

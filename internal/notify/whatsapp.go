package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppClient posts chat messages to a gateway that accepts
// {"phone", "message", "apiKey"} JSON bodies.
type WhatsAppClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewWhatsAppClient(url, apiKey string, timeout time.Duration) (*WhatsAppClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing whatsapp gateway url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		url:        strings.TrimSpace(url),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type whatsAppMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	APIKey  string `json:"apiKey"`
}

func (c *WhatsAppClient) SendMessage(ctx context.Context, phone, message string) error {
	if strings.TrimSpace(phone) == "" {
		return fmt.Errorf("whatsapp: phone required")
	}
	body, err := json.Marshal(whatsAppMessage{Phone: phone, Message: message, APIKey: c.apiKey})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

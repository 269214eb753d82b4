package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-crm/mailer/internal/pkg/httpretry"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// SendGridTransport delivers mail through the SendGrid v3 Mail Send API.
type SendGridTransport struct {
	apiKey  string
	baseURL string
	client  httpretry.Doer
}

// NewSendGridTransport creates a SendGrid transport.
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return &SendGridTransport{
		apiKey:  apiKey,
		baseURL: "https://api.sendgrid.com/v3",
		client:  httpretry.New(&http.Client{Timeout: 60 * time.Second}, 3),
	}
}

// Send delivers a single email through SendGrid.
func (t *SendGridTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}

	content := []map[string]string{{"type": "text/html", "value": msg.HTML}}
	if msg.Text != "" {
		content = []map[string]string{
			{"type": "text/plain", "value": msg.Text},
			{"type": "text/html", "value": msg.HTML},
		}
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": msg.FromEmail, "name": msg.FromName},
		"subject": msg.Subject,
		"content": content,
	}
	if msg.CampaignID != "" {
		payload["custom_args"] = map[string]string{"campaign_id": msg.CampaignID}
	}
	if len(msg.Headers) > 0 {
		payload["headers"] = msg.Headers
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/mail/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &SendResult{Success: false, Error: fmt.Errorf("send: %w", err), Provider: ProviderSendGrid}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return &SendResult{
			Success:  false,
			Error:    fmt.Errorf("SendGrid error %d: %s", resp.StatusCode, string(body)),
			Provider: ProviderSendGrid,
		}, nil
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}

	logger.Info("sendgrid send ok", "to", msg.To, "message_id", messageID)
	return &SendResult{Success: true, MessageID: messageID, Provider: ProviderSendGrid, SentAt: time.Now()}, nil
}

// Probe verifies the API key against the scopes endpoint.
func (t *SendGridTransport) Probe(ctx context.Context) error {
	if t.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/scopes", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("SendGrid connect: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("SendGrid auth check failed with status %d", resp.StatusCode)
	}
	return nil
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombor/scanlens/internal/extract"
)

// WebhookDispatcher POSTs intents as JSON to a URL
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a WebhookDispatcher for url
func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookBody struct {
	URI     string             `json:"uri"`
	Payment extract.UPIPayment `json:"payment"`
}

// Dispatch sends the intent; any non-2xx response is an error
func (w *WebhookDispatcher) Dispatch(ctx context.Context, p extract.UPIPayment) error {
	jsonData, err := json.Marshal(webhookBody{URI: IntentURI(p), Payment: p})
	if err != nil {
		return fmt.Errorf("marshaling payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling payment webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("payment webhook error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

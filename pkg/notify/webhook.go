package notify

import (
	"fmt"
	"net/http"
	"time"
)

// Webhook pings a monitoring endpoint (e.g. Uptime Kuma's push URL) with a
// bare GET, ignoring title/message/priority — the endpoint's URL already
// encodes what it means to be pinged.
type Webhook struct {
	URL string

	Client *http.Client
}

// NewWebhook returns a Webhook notifier with a bounded-timeout HTTP client.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify implements Notifier.
func (w *Webhook) Notify(_, _ string, _ int) error {
	resp, err := w.Client.Get(w.URL)
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

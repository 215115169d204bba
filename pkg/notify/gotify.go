package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gotify sends notifications to a self-hosted Gotify server.
type Gotify struct {
	URL   string
	Token string

	Client *http.Client
}

// NewGotify returns a Gotify notifier with a bounded-timeout HTTP client.
func NewGotify(url, token string) *Gotify {
	return &Gotify{URL: url, Token: token, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify implements Notifier.
func (g *Gotify) Notify(title, message string, priority int) error {
	form := url.Values{
		"title":    {title},
		"message":  {message},
		"priority": {fmt.Sprintf("%d", priority)},
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(g.URL, "/")+"/message", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Gotify-Key", g.Token)

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: gotify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: gotify returned status %d", resp.StatusCode)
	}
	return nil
}

package newsletter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ln-ticketing/internal/config"
	"ln-ticketing/internal/logger"
)

// Client subscribes purchasers to the event newsletter (a Sendy-compatible
// list API). Subscribing someone who is already on the list is a success.
type Client struct {
	Config config.NewsletterConfig
	HTTP   *http.Client
	Logger *logger.Logger
}

func New(cfg config.NewsletterConfig, httpClient *http.Client, log *logger.Logger) *Client {
	return &Client{Config: cfg, HTTP: httpClient, Logger: log}
}

// Subscribe adds the address to the configured list. Returns alreadySubscribed
// so callers can skip the welcome email for repeat signups.
func (c *Client) Subscribe(ctx context.Context, fullname, email string) (alreadySubscribed bool, err error) {
	form := url.Values{}
	form.Set("name", fullname)
	form.Set("email", email)
	form.Set("list", c.Config.ListID)
	form.Set("api_key", c.Config.APIKey)
	form.Set("boolean", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.URL+"/subscribe", strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("newsletter subscribe failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	answer := strings.TrimSpace(string(body))
	switch {
	case answer == "1" || strings.EqualFold(answer, "true"):
		return false, nil
	case strings.EqualFold(answer, "Already subscribed."), strings.EqualFold(answer, "Already subscribed"):
		return true, nil
	default:
		return false, fmt.Errorf("newsletter subscribe failed: %s", answer)
	}
}

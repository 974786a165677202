package lightning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fiatjaf/go-lnurl"
	"github.com/nbd-wtf/go-nostr"

	"ln-ticketing/internal/logger"
)

// Invoice is what the LNURL-pay callback returns: the payment request and
// the LUD-21 verification URL.
type Invoice struct {
	PR     string `json:"pr"`
	Verify string `json:"verify"`
}

type payResponse struct {
	Callback    string `json:"callback"`
	MaxSendable int64  `json:"maxSendable"`
	MinSendable int64  `json:"minSendable"`
	Metadata    string `json:"metadata"`
	Tag         string `json:"tag"`
	AllowsNostr bool   `json:"allowsNostr"`
}

type verifyResponse struct {
	Settled bool   `json:"settled"`
	Status  string `json:"status"`
}

type Client struct {
	HTTP   *http.Client
	Logger *logger.Logger
}

func NewClient(httpClient *http.Client, log *logger.Logger) *Client {
	return &Client{HTTP: httpClient, Logger: log}
}

// ResolveWalias turns a lightning address (name@domain) or a bech32 lnurl
// into the LNURL-pay callback URL.
func (c *Client) ResolveWalias(ctx context.Context, walias string) (string, error) {
	endpoint, err := waliasToURL(walias)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("lnurlp lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lnurlp lookup failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var pay payResponse
	if err := json.Unmarshal(body, &pay); err != nil {
		return "", fmt.Errorf("invalid lnurlp response: %w", err)
	}
	if pay.Callback == "" {
		return "", fmt.Errorf("lnurlp response for %s has no callback", walias)
	}
	return pay.Callback, nil
}

func waliasToURL(walias string) (string, error) {
	if strings.HasPrefix(strings.ToLower(walias), "lnurl1") {
		decoded, err := lnurl.LNURLDecode(walias)
		if err != nil {
			return "", fmt.Errorf("invalid lnurl: %w", err)
		}
		return decoded, nil
	}

	parts := strings.Split(walias, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid lightning address %q", walias)
	}
	return "https://" + parts[1] + "/.well-known/lnurlp/" + parts[0], nil
}

// GenerateInvoice requests an invoice from the LNURL-pay callback, attaching
// the signed zap request so the provider can emit a NIP-57 receipt.
func (c *Client) GenerateInvoice(ctx context.Context, callback string, amountMilliSats int64, zapRequest *nostr.Event) (*Invoice, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}

	q := u.Query()
	q.Set("amount", strconv.FormatInt(amountMilliSats, 10))
	if zapRequest != nil {
		encoded, err := json.Marshal(zapRequest)
		if err != nil {
			return nil, err
		}
		q.Set("nostr", string(encoded))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoice generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invoice generation failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var invoice Invoice
	if err := json.Unmarshal(body, &invoice); err != nil {
		return nil, fmt.Errorf("invalid invoice response: %w", err)
	}
	if invoice.PR == "" {
		return nil, fmt.Errorf("invoice response has no payment request")
	}
	return &invoice, nil
}

// VerifySettled polls the LUD-21 verify URL. A non-200 answer is an upstream
// error the caller retries on its own schedule.
func (c *Client) VerifySettled(ctx context.Context, verifyURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("lud-21 verify failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("lud-21 verify failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	var verify verifyResponse
	if err := json.Unmarshal(body, &verify); err != nil {
		return false, fmt.Errorf("invalid lud-21 response: %w", err)
	}
	return verify.Settled, nil
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classnotify/notify-backend/pkg/config"
)

const twilioBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS through the Twilio Messages API. Every outbound
// message carries the status-callback URL so delivery receipts come back to
// the webhook endpoint.
type TwilioClient struct {
	cfg     config.TwilioConfig
	baseURL string
	http    *http.Client
}

func NewTwilioClient(cfg config.TwilioConfig) *TwilioClient {
	return &TwilioClient{
		cfg:     cfg,
		baseURL: twilioBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type twilioMessageResp struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
	Message      string  `json:"message"` // error payloads
	Code         int     `json:"code"`
}

// Send posts one message and returns the provider message sid.
func (c *TwilioClient) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)
	if c.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.cfg.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twilio response: %w", err)
	}

	var out twilioMessageResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("twilio response decode (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio send failed (http %d, code %d): %s", resp.StatusCode, out.Code, out.Message)
	}
	if out.SID == "" {
		return "", fmt.Errorf("twilio send: empty sid in response")
	}
	return out.SID, nil
}

package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/apptly/apptly/internal/config"
	"github.com/sirupsen/logrus"
)

// Client talks to the SMS gateway. One shot, no retries; the OTP engine
// decides what a delivery failure costs the caller.
type Client struct {
	cfg        *config.SMSConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *config.SMSConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type sendRequest struct {
	Key       string `json:"key"`
	User      string `json:"user"`
	Password  string `json:"pass"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"msg"`
}

// SendCode texts a one-time code to phone and returns the provider's raw
// response body as the delivery receipt.
func (c *Client) SendCode(ctx context.Context, phone, code string) (string, error) {
	payload := sendRequest{
		Key:       c.cfg.APIKey,
		User:      c.cfg.User,
		Password:  c.cfg.Password,
		Sender:    c.cfg.Sender,
		Recipient: phone,
		Message:   "Hi, your one-time code is: " + code,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("SMS gateway request failed")
		return "", fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read SMS gateway response: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.logger.WithField("status", resp.StatusCode).Error("SMS gateway rejected request")
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	return string(respBody), nil
}

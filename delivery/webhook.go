package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookConfig configures [WebhookSender].
type WebhookConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

// WebhookSender posts SMS requests as JSON to a gateway URL. Any 2xx
// response counts as accepted.
type WebhookSender struct {
	cfg    WebhookConfig
	client *http.Client
	logger *zap.Logger
}

type webhookPayload struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	Purpose   string `json:"purpose"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

func NewWebhookSender(cfg WebhookConfig, logger *zap.Logger) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, errors.New("sms webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (s *WebhookSender) SendCode(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(webhookPayload{
		To:        msg.Contact,
		Message:   bodyFor(msg),
		Purpose:   string(msg.Purpose),
		ExpiresIn: int(msg.ExpiresIn / time.Second),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("sms webhook request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("sms webhook rejected message", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: gateway status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

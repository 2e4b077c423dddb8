package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendConfig configures [ResendSender].
type ResendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// ResendSender delivers email codes through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

func NewResendSender(cfg ResendConfig, logger *zap.Logger) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resend API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("from email is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}

	return &ResendSender{
		client: resend.NewClient(cfg.APIKey),
		from:   from,
		logger: logger,
	}, nil
}

func (s *ResendSender) SendCode(ctx context.Context, msg Message) error {
	body := bodyFor(msg)
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.Contact},
		Subject: subjectFor(msg.Purpose),
		Text:    body,
		Html:    "<p>" + html.EscapeString(body) + "</p>",
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Warn("resend delivery failed",
			zap.String("purpose", string(msg.Purpose)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.logger.Debug("resend delivery accepted",
		zap.String("purpose", string(msg.Purpose)),
		zap.String("provider_id", sent.Id),
	)
	return nil
}

package delivery

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes codes to a logger instead of delivering them.
// For local development only: the code appears in the log.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("delivery")}
}

func (s *LogSender) SendCode(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("verification code",
		zap.String("channel", string(msg.Channel)),
		zap.String("purpose", string(msg.Purpose)),
		zap.String("contact", msg.Contact),
		zap.String("code", msg.Code),
	)
	return nil
}

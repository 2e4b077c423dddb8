// Package delivery sends one-time codes to users over email or SMS.
//
// The engine sees only [Sender]: a synchronous call that succeeds or fails.
// Provider detail never crosses that boundary. [Router] picks a sender per
// channel; [ResendSender] delivers email through Resend, [WebhookSender]
// posts SMS requests to an HTTP gateway and [LogSender] writes codes to a
// zap logger for local development.
package delivery

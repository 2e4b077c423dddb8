package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is the medium a code travels over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Purpose tells templates why the code was sent.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePhoneVerification Purpose = "phone_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

var (
	// ErrNoSender is returned by Router when no sender serves the channel.
	ErrNoSender = errors.New("no sender for channel")
	// ErrDeliveryFailed wraps provider failures.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Message is one code to deliver. ExpiresIn is the code lifetime shown to
// the recipient; zero leaves it out of the text.
type Message struct {
	Contact     string
	Code        string
	DisplayName string
	Channel     Channel
	Purpose     Purpose
	ExpiresIn   time.Duration
}

// Sender delivers a message or reports failure. Implementations must honor
// ctx cancellation; a deadline hit counts as failure.
type Sender interface {
	SendCode(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) SendCode(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Router dispatches by channel.
type Router struct {
	senders map[Channel]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[Channel]Sender, 2)}
}

// Handle registers s for channel and returns the router for chaining.
func (r *Router) Handle(channel Channel, s Sender) *Router {
	r.senders[channel] = s
	return r
}

func (r *Router) SendCode(ctx context.Context, msg Message) error {
	s, ok := r.senders[msg.Channel]
	if !ok || s == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, msg.Channel)
	}
	return s.SendCode(ctx, msg)
}

func subjectFor(p Purpose) string {
	switch p {
	case PurposePasswordReset:
		return "Your password reset code"
	default:
		return "Your verification code"
	}
}

func bodyFor(msg Message) string {
	name := msg.DisplayName
	if name == "" {
		name = "there"
	}
	expiry := ""
	if msg.ExpiresIn > 0 {
		expiry = " It expires in " + humanDuration(msg.ExpiresIn) + "."
	}
	switch msg.Purpose {
	case PurposePasswordReset:
		return fmt.Sprintf("Hi %s, your password reset code is %s.%s If you did not ask for it, ignore this message.", name, msg.Code, expiry)
	default:
		return fmt.Sprintf("Hi %s, your verification code is %s.%s", name, msg.Code, expiry)
	}
}

// humanDuration renders d in whole hours, minutes or seconds. Partial
// units are truncated so the text never promises more time than the code
// has left.
func humanDuration(d time.Duration) string {
	unit := func(n int64, word string) string {
		if n == 1 {
			return "1 " + word
		}
		return fmt.Sprintf("%d %ss", n, word)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return unit(int64(d/time.Minute), "minute")
	default:
		return unit(max(int64(d/time.Second), 1), "second")
	}
}

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRouterDispatchesByChannel(t *testing.T) {
	var emails, sms int32
	r := NewRouter().
		Handle(ChannelEmail, SenderFunc(func(context.Context, Message) error {
			atomic.AddInt32(&emails, 1)
			return nil
		})).
		Handle(ChannelSMS, SenderFunc(func(context.Context, Message) error {
			atomic.AddInt32(&sms, 1)
			return nil
		}))

	require.NoError(t, r.SendCode(context.Background(), Message{Channel: ChannelEmail, Code: "123456"}))
	require.NoError(t, r.SendCode(context.Background(), Message{Channel: ChannelSMS, Code: "123456"}))
	require.NoError(t, r.SendCode(context.Background(), Message{Channel: ChannelSMS, Code: "123456"}))

	assert.Equal(t, int32(1), atomic.LoadInt32(&emails))
	assert.Equal(t, int32(2), atomic.LoadInt32(&sms))
}

func TestRouterUnknownChannel(t *testing.T) {
	err := NewRouter().SendCode(context.Background(), Message{Channel: ChannelSMS})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookConfig{URL: srv.URL, AuthToken: "secret"}, zap.NewNop())
	require.NoError(t, err)

	err = s.SendCode(context.Background(), Message{
		Contact: "+15551234567",
		Code:      "042133",
		Channel:   ChannelSMS,
		Purpose:   PurposePhoneVerification,
		ExpiresIn: 10 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, "+15551234567", got.To)
	assert.Equal(t, 600, got.ExpiresIn)
	assert.Contains(t, got.Message, "expires in 10 minutes")
	assert.Equal(t, string(PurposePhoneVerification), got.Purpose)
	assert.Contains(t, got.Message, "042133")
}

func TestWebhookSenderNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	err = s.SendCode(context.Background(), Message{Contact: "+15551234567", Code: "111111"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestWebhookSenderHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s, err := NewWebhookSender(WebhookConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = s.SendCode(ctx, Message{Contact: "+15551234567", Code: "111111"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNewWebhookSenderRequiresURL(t *testing.T) {
	_, err := NewWebhookSender(WebhookConfig{}, nil)
	assert.Error(t, err)
}

func TestNewResendSenderValidates(t *testing.T) {
	_, err := NewResendSender(ResendConfig{FromEmail: "no-reply@bank.test"}, nil)
	assert.Error(t, err)

	_, err = NewResendSender(ResendConfig{APIKey: "re_test"}, nil)
	assert.Error(t, err)

	s, err := NewResendSender(ResendConfig{APIKey: "re_test", FromEmail: "no-reply@bank.test", FromName: "Bank"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bank <no-reply@bank.test>", s.from)
}

func TestLogSenderWritesCode(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	err := s.SendCode(context.Background(), Message{
		Contact: "ana@bank.test",
		Code:    "987654",
		Channel: ChannelEmail,
		Purpose: PurposeEmailVerification,
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("verification code").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "987654", entries[0].ContextMap()["code"])
}

func TestLogSenderCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLogSender(nil).SendCode(ctx, Message{Code: "1"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBodyMentionsPurpose(t *testing.T) {
	reset := bodyFor(Message{Code: "123456", Purpose: PurposePasswordReset, DisplayName: "Ana"})
	assert.True(t, strings.HasPrefix(reset, "Hi Ana"))
	assert.Contains(t, reset, "password reset")

	verify := bodyFor(Message{Code: "123456", Purpose: PurposeEmailVerification})
	assert.Contains(t, verify, "Hi there")
	assert.Equal(t, "Your password reset code", subjectFor(PurposePasswordReset))
}

func TestBodyRendersCodeLifetime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{15 * time.Minute, "It expires in 15 minutes."},
		{90 * time.Second, "It expires in 1 minute."},
		{2 * time.Hour, "It expires in 2 hours."},
		{45 * time.Second, "It expires in 45 seconds."},
		{time.Hour + 30*time.Minute, "It expires in 90 minutes."},
	}
	for _, c := range cases {
		body := bodyFor(Message{Code: "123456", ExpiresIn: c.in})
		assert.Contains(t, body, c.want, c.in.String())
	}

	assert.NotContains(t, bodyFor(Message{Code: "123456"}), "expires")
}

// Package webhook provides LINE webhook handling.
// This file contains the delivery dispatcher: reply-token delivery
// with push fallback.
package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	apperrors "github.com/nutrilog/nutri-linebot-go/internal/errors"
	"github.com/nutrilog/nutri-linebot-go/internal/lineutil"
	"github.com/nutrilog/nutri-linebot-go/internal/logger"
	"github.com/nutrilog/nutri-linebot-go/internal/metrics"
	"github.com/nutrilog/nutri-linebot-go/internal/ratelimit"
)

// Delivery is one outbound message.
type Delivery struct {
	// ReplyToken authorizes the cheap reply path. One-shot and
	// short-lived.
	ReplyToken string
	// UserID is the push fallback target.
	UserID string
	// Text is the message body.
	Text string
	// EventTime is when the platform emitted the triggering event,
	// used to judge whether the reply token is still fresh.
	EventTime time.Time
}

// Deliverer sends a message to the user.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Sender delivers messages via the LINE Messaging API. It prefers the
// reply-token path and falls back to push when the token is stale,
// missing, or rejected.
type Sender struct {
	client  *messaging_api.MessagingApiAPI
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	logger  *logger.Logger
	window  time.Duration
	now     func() time.Time
}

// NewSender creates a Sender. window is how long after the event a
// reply token is still trusted to work.
func NewSender(client *messaging_api.MessagingApiAPI, limiter *ratelimit.Limiter, m *metrics.Metrics, log *logger.Logger, window time.Duration) *Sender {
	return &Sender{
		client:  client,
		limiter: limiter,
		metrics: m,
		logger:  log.WithModule("sender"),
		window:  window,
		now:     time.Now,
	}
}

// Deliver sends d.Text to the user. Exactly one message reaches the
// user on success; on total failure an error is returned and nothing
// was delivered.
func (s *Sender) Deliver(ctx context.Context, d Delivery) error {
	if err := s.limiter.Wait(ctx); err != nil {
		s.metrics.RecordDelivery("none", "rate_limit_canceled")
		return apperrors.NewDeliveryError("none", err)
	}

	msg := lineutil.NewTextMessage(d.Text)
	log := s.logger.WithUserID(d.UserID)

	if s.shouldReply(d) {
		_, err := s.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
			ReplyToken: d.ReplyToken,
			Messages:   []messaging_api.MessageInterface{msg},
		})
		if err == nil {
			s.metrics.RecordDelivery("reply", "success")
			return nil
		}

		// Stale or consumed token. One push attempt remains.
		log.WithError(err).Warn("Reply failed, falling back to push")
		s.metrics.RecordDelivery("reply", "error")
	}

	return s.push(d, msg, log)
}

// shouldReply reports whether the reply-token path is worth trying.
func (s *Sender) shouldReply(d Delivery) bool {
	if d.ReplyToken == "" {
		return false
	}
	if d.EventTime.IsZero() {
		return true
	}
	return s.now().Sub(d.EventTime) <= s.window
}

// push sends via the push API. The retry key makes the attempt
// idempotent on the platform side.
func (s *Sender) push(d Delivery, msg messaging_api.MessageInterface, log *logger.Logger) error {
	if d.UserID == "" {
		s.metrics.RecordDelivery("push", "no_target")
		return apperrors.NewDeliveryError("push", apperrors.ErrNotFound)
	}

	retryKey := uuid.NewString()
	_, err := s.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       d.UserID,
		Messages: []messaging_api.MessageInterface{msg},
	}, retryKey)
	if err != nil {
		s.metrics.RecordDelivery("push", "error")
		return apperrors.NewDeliveryError("push", err)
	}

	s.metrics.RecordDelivery("push", "success")
	log.WithField("retry_key", retryKey).Info("Delivered via push")
	return nil
}

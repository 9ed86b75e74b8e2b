// Package webhook provides LINE webhook handling: signature
// verification, immediate acknowledgment, event deduplication, and
// asynchronous dispatch of each event through the conversation
// pipeline.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/nutrilog/nutri-linebot-go/internal/coach"
	"github.com/nutrilog/nutri-linebot-go/internal/config"
	"github.com/nutrilog/nutri-linebot-go/internal/ctxutil"
	"github.com/nutrilog/nutri-linebot-go/internal/logger"
	"github.com/nutrilog/nutri-linebot-go/internal/metrics"
)

// MaxEventsPerWebhook caps one webhook batch. LINE batches are small
// in practice; anything larger is suspect.
const MaxEventsPerWebhook = 100

// Processor runs the conversation pipeline for one normalized message.
type Processor interface {
	Process(ctx context.Context, msg coach.Incoming) (string, error)
	Welcome(ctx context.Context, userID string) string
	FallbackReply() string
}

// Deduper decides whether an event id has been seen before.
type Deduper interface {
	ShouldProcess(eventID string) bool
}

// ImageFetcher downloads message content (photo bytes) by message id.
type ImageFetcher interface {
	FetchImage(ctx context.Context, messageID string) (data []byte, mimeType string, err error)
}

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI // loading animation; may be nil in tests
	processor     Processor
	deliverer     Deliverer
	dedup         Deduper
	images        ImageFetcher
	metrics       *metrics.Metrics
	logger        *logger.Logger
	wg            sync.WaitGroup
}

// HandlerConfig holds the dependencies for a Handler.
type HandlerConfig struct {
	ChannelSecret string
	Client        *messaging_api.MessagingApiAPI
	Processor     Processor
	Deliverer     Deliverer
	Dedup         Deduper
	Images        ImageFetcher
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		channelSecret: cfg.ChannelSecret,
		client:        cfg.Client,
		processor:     cfg.Processor,
		deliverer:     cfg.Deliverer,
		dedup:         cfg.Dedup,
		images:        cfg.Images,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.WithModule("webhook"),
	}
}

// Handle is the Gin handler for the webhook endpoint. It verifies the
// signature, acknowledges immediately, then processes the events in
// the background. LINE retries the whole batch on any non-2xx or slow
// response, so the acknowledgment must not wait on generation or
// storage.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)

	if len(cb.Events) > MaxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).
			WithField("limit", MaxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:MaxEventsPerWebhook]
	}

	// Copy events so the batch outlives the HTTP request.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for _, event := range events {
			h.safeProcessEvent(context.Background(), event)
		}
	}()
}

// safeProcessEvent isolates one event: a panic inside the pipeline is
// logged and the remaining events in the batch still run.
func (h *Handler) safeProcessEvent(ctx context.Context, event webhook.EventInterface) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("panic", r).Error("Panic in event processing")
		}
	}()
	h.processEvent(ctx, event)
}

// processEvent handles a single webhook event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	start := time.Now()

	eventID, eventTimestamp, isRedelivery := extractEventMeta(event)

	log := h.logger
	if eventID != "" {
		ctx = ctxutil.WithEventID(ctx, eventID)
		log = log.WithEventID(eventID)
	}
	if isRedelivery != nil && *isRedelivery {
		log = log.WithField("is_redelivery", true)
	}

	// At-least-once delivery: drop events whose id we have already
	// processed. Redeliveries after a slow ack land here.
	if !h.dedup.ShouldProcess(eventID) {
		log.Info("Duplicate event suppressed")
		h.metrics.RecordDedupSuppressed()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, config.EventProcessing)
	defer cancel()

	var eventType string
	var err error

	switch e := event.(type) {
	case webhook.MessageEvent:
		eventType = "message"
		err = h.handleMessage(ctx, e, eventTimestamp, log)
	case webhook.FollowEvent:
		eventType = "follow"
		err = h.handleFollow(ctx, e, eventTimestamp, log)
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debug("Unsupported event type")
		return
	}

	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Error("Failed to handle event")
	}
	h.metrics.RecordWebhookEvent(eventType, status, duration.Seconds())

	log.WithField("event_type", eventType).
		WithField("duration_ms", duration.Milliseconds()).
		Info("Event processed")
}

// handleMessage runs one text or image message through the pipeline
// and delivers the result. The reply is never skipped: a pipeline
// failure downgrades to the fixed fallback text.
func (h *Handler) handleMessage(ctx context.Context, e webhook.MessageEvent, eventTimestamp int64, log *logger.Logger) error {
	userID := sourceUserID(e.Source)
	if userID == "" {
		log.Debug("Message without user source, skipping")
		return nil
	}
	ctx = ctxutil.WithUserID(ctx, userID)
	log = log.WithUserID(userID)

	msg := coach.Incoming{UserID: userID}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		msg.Text = m.Text
	case webhook.ImageMessageContent:
		if h.images == nil {
			log.Debug("Image support not configured, skipping")
			return nil
		}
		data, mime, err := h.images.FetchImage(ctx, m.Id)
		if err != nil {
			log.WithError(err).Error("Failed to fetch image content")
			return h.deliver(ctx, e.ReplyToken, userID, eventTimestamp, h.processor.FallbackReply(), log)
		}
		msg.ImageData = data
		msg.ImageMIME = mime
	default:
		log.WithField("message_type", e.Message.GetType()).Debug("Unsupported message type")
		return nil
	}

	h.showLoadingAnimation(userID, log)

	text, err := h.processor.Process(ctx, msg)
	if err != nil {
		text = h.processor.FallbackReply()
	}

	return h.deliver(ctx, e.ReplyToken, userID, eventTimestamp, text, log)
}

// handleFollow greets a user who just added the bot and seeds their
// profile document.
func (h *Handler) handleFollow(ctx context.Context, e webhook.FollowEvent, eventTimestamp int64, log *logger.Logger) error {
	userID := sourceUserID(e.Source)
	if userID == "" {
		return nil
	}
	ctx = ctxutil.WithUserID(ctx, userID)
	return h.deliver(ctx, e.ReplyToken, userID, eventTimestamp, h.processor.Welcome(ctx, userID), log.WithUserID(userID))
}

func (h *Handler) deliver(ctx context.Context, replyToken, userID string, eventTimestamp int64, text string, log *logger.Logger) error {
	err := h.deliverer.Deliver(ctx, Delivery{
		ReplyToken: replyToken,
		UserID:     userID,
		Text:       text,
		EventTime:  time.UnixMilli(eventTimestamp),
	})
	if err != nil {
		// Nothing left to try; the user gets silence this once.
		log.WithError(err).Error("Delivery failed")
	}
	return err
}

// showLoadingAnimation shows the typing indicator while generation
// runs. Best effort and only available in one-on-one chats.
func (h *Handler) showLoadingAnimation(chatID string, log *logger.Logger) {
	if h.client == nil {
		return
	}

	// LINE API: loadingSeconds must be 5-60, a multiple of 5. Max it
	// out to cover the whole event processing budget.
	req := &messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: 60,
	}

	if _, err := h.client.ShowLoadingAnimation(req); err != nil {
		log.WithError(err).Warn("Failed to show loading animation")
	}
}

func extractEventMeta(event webhook.EventInterface) (string, int64, *bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryPtr(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryPtr(e.DeliveryContext)
	case webhook.UnfollowEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryPtr(e.DeliveryContext)
	default:
		return "", 0, nil
	}
}

func redeliveryPtr(ctx *webhook.DeliveryContext) *bool {
	if ctx == nil {
		return nil
	}
	val := ctx.IsRedelivery
	return &val
}

func sourceUserID(source webhook.SourceInterface) string {
	if s, ok := source.(webhook.UserSource); ok {
		return s.UserId
	}
	return ""
}

// Shutdown waits for in-flight event processing to complete, up to
// the context deadline.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

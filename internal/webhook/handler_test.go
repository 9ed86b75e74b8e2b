package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilog/nutri-linebot-go/internal/coach"
	"github.com/nutrilog/nutri-linebot-go/internal/dedup"
	"github.com/nutrilog/nutri-linebot-go/internal/logger"
	"github.com/nutrilog/nutri-linebot-go/internal/metrics"
)

const testChannelSecret = "test-channel-secret"

// fakeProcessor captures incoming messages and returns a canned reply.
type fakeProcessor struct {
	mu       sync.Mutex
	incoming []coach.Incoming
	welcomed []string
	reply    string
	err      error
	delay    time.Duration
	panicOn  string
}

func (f *fakeProcessor) Process(_ context.Context, msg coach.Incoming) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn != "" && msg.Text == f.panicOn {
		panic("pipeline blew up")
	}
	f.mu.Lock()
	f.incoming = append(f.incoming, msg)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProcessor) Welcome(_ context.Context, userID string) string {
	f.mu.Lock()
	f.welcomed = append(f.welcomed, userID)
	f.mu.Unlock()
	return "welcome!"
}
func (f *fakeProcessor) FallbackReply() string { return "fallback!" }

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.incoming)
}

// fakeDeliverer records every delivery.
type fakeDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
}

func (f *fakeDeliverer) Deliver(_ context.Context, d Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return f.err
}

func (f *fakeDeliverer) all() []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Delivery, len(f.deliveries))
	copy(out, f.deliveries)
	return out
}

// fakeImages returns fixed bytes for any message id.
type fakeImages struct {
	data []byte
	mime string
	err  error
}

func (f *fakeImages) FetchImage(_ context.Context, _ string) ([]byte, string, error) {
	return f.data, f.mime, f.err
}

type testHarness struct {
	handler   *Handler
	router    *gin.Engine
	processor *fakeProcessor
	deliverer *fakeDeliverer
}

func newHarness(t *testing.T, proc *fakeProcessor, del *fakeDeliverer, images ImageFetcher) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := dedup.NewWithSweep(10*time.Minute, 0)
	t.Cleanup(cache.Stop)

	h := NewHandler(HandlerConfig{
		ChannelSecret: testChannelSecret,
		Processor:     proc,
		Deliverer:     del,
		Dedup:         cache,
		Images:        images,
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Logger:        logger.NewWithWriter("error", io.Discard),
	})

	router := gin.New()
	router.POST("/webhook", h.Handle)

	return &testHarness{handler: h, router: router, processor: proc, deliverer: del}
}

func (th *testHarness) post(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		mac := hmac.New(sha256.New, []byte(testChannelSecret))
		mac.Write([]byte(body))
		req.Header.Set("x-line-signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	} else {
		req.Header.Set("x-line-signature", "bm90LXRoZS1yaWdodC1zaWduYXR1cmU=")
	}

	w := httptest.NewRecorder()
	th.router.ServeHTTP(w, req)
	return w
}

func (th *testHarness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.handler.Shutdown(ctx))
}

func textEventBody(eventID, userID, replyToken, text string, ts int64, redelivery bool) string {
	return fmt.Sprintf(`{"destination":"Udest","events":[{"type":"message","webhookEventId":%q,"deliveryContext":{"isRedelivery":%t},"timestamp":%d,"mode":"active","source":{"type":"user","userId":%q},"replyToken":%q,"message":{"type":"text","id":"m1","quoteToken":"qt","text":%q}}]}`,
		eventID, redelivery, ts, userID, replyToken, text)
}

func TestHandleInvalidSignature(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "ok"}, &fakeDeliverer{}, nil)

	w := th.post(t, textEventBody("evt-1", "U1", "rt-1", "hi", time.Now().UnixMilli(), false), false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	th.drain(t)
	assert.Zero(t, th.processor.count(), "unverified events must never reach the pipeline")
}

func TestHandleAcksImmediately(t *testing.T) {
	proc := &fakeProcessor{reply: "slow ok", delay: 500 * time.Millisecond}
	th := newHarness(t, proc, &fakeDeliverer{}, nil)

	start := time.Now()
	w := th.post(t, textEventBody("evt-1", "U1", "rt-1", "hi", time.Now().UnixMilli(), false), true)
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, elapsed, 200*time.Millisecond, "ack must not wait for processing")

	th.drain(t)
	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "slow ok", deliveries[0].Text)
}

func TestHandleDeliversReply(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "こんにちは！"}, &fakeDeliverer{}, nil)

	ts := time.Now().UnixMilli()
	w := th.post(t, textEventBody("evt-1", "U1", "rt-1", "おはよう", ts, false), true)
	assert.Equal(t, http.StatusOK, w.Code)
	th.drain(t)

	require.Equal(t, 1, th.processor.count())
	assert.Equal(t, "おはよう", th.processor.incoming[0].Text)
	assert.Equal(t, "U1", th.processor.incoming[0].UserID)

	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "こんにちは！", deliveries[0].Text)
	assert.Equal(t, "rt-1", deliveries[0].ReplyToken)
	assert.Equal(t, "U1", deliveries[0].UserID)
	assert.Equal(t, time.UnixMilli(ts), deliveries[0].EventTime)
}

func TestHandleDuplicateEventSuppressed(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "ok"}, &fakeDeliverer{}, nil)

	body := textEventBody("evt-dup", "U1", "rt-1", "hi", time.Now().UnixMilli(), false)
	th.post(t, body, true)
	th.drain(t)

	redelivered := textEventBody("evt-dup", "U1", "rt-2", "hi", time.Now().UnixMilli(), true)
	th.post(t, redelivered, true)
	th.drain(t)

	assert.Equal(t, 1, th.processor.count(), "redelivered event must be processed once")
	assert.Len(t, th.deliverer.all(), 1)
}

func TestHandleNeverSilentOnPipelineFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("generation down")}
	th := newHarness(t, proc, &fakeDeliverer{}, nil)

	th.post(t, textEventBody("evt-1", "U1", "rt-1", "hi", time.Now().UnixMilli(), false), true)
	th.drain(t)

	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1, "a failed pipeline still owes the user a reply")
	assert.Equal(t, proc.FallbackReply(), deliveries[0].Text)
}

func TestHandleFollowEvent(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "ok"}, &fakeDeliverer{}, nil)

	body := fmt.Sprintf(`{"destination":"Udest","events":[{"type":"follow","webhookEventId":"evt-f","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U9"},"replyToken":"rt-f","follow":{"isUnblocked":false}}]}`,
		time.Now().UnixMilli())
	w := th.post(t, body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	th.drain(t)

	assert.Zero(t, th.processor.count(), "follow events skip the generation pipeline")
	assert.Equal(t, []string{"U9"}, th.processor.welcomed)
	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "welcome!", deliveries[0].Text)
	assert.Equal(t, "U9", deliveries[0].UserID)
}

func TestHandleImageMessage(t *testing.T) {
	images := &fakeImages{data: []byte{0xFF, 0xD8, 0xFF}, mime: "image/jpeg"}
	th := newHarness(t, &fakeProcessor{reply: "美味しそう！"}, &fakeDeliverer{}, images)

	body := fmt.Sprintf(`{"destination":"Udest","events":[{"type":"message","webhookEventId":"evt-i","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U1"},"replyToken":"rt-i","message":{"type":"image","id":"m2","quoteToken":"qt","contentProvider":{"type":"line"}}}]}`,
		time.Now().UnixMilli())
	th.post(t, body, true)
	th.drain(t)

	require.Equal(t, 1, th.processor.count())
	msg := th.processor.incoming[0]
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, msg.ImageData)
	assert.Equal(t, "image/jpeg", msg.ImageMIME)

	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "美味しそう！", deliveries[0].Text)
}

func TestHandleImageFetchFailureFallsBack(t *testing.T) {
	images := &fakeImages{err: errors.New("blob api down")}
	proc := &fakeProcessor{reply: "unused"}
	th := newHarness(t, proc, &fakeDeliverer{}, images)

	body := fmt.Sprintf(`{"destination":"Udest","events":[{"type":"message","webhookEventId":"evt-i","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U1"},"replyToken":"rt-i","message":{"type":"image","id":"m2","quoteToken":"qt","contentProvider":{"type":"line"}}}]}`,
		time.Now().UnixMilli())
	th.post(t, body, true)
	th.drain(t)

	assert.Zero(t, proc.count(), "undownloadable image never reaches the pipeline")
	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, proc.FallbackReply(), deliveries[0].Text)
}

func TestHandleUnsupportedMessageTypeSkipped(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "ok"}, &fakeDeliverer{}, nil)

	body := fmt.Sprintf(`{"destination":"Udest","events":[{"type":"message","webhookEventId":"evt-s","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U1"},"replyToken":"rt-s","message":{"type":"sticker","id":"m3","quoteToken":"qt","stickerId":"1","packageId":"1","stickerResourceType":"STATIC","keywords":[]}}]}`,
		time.Now().UnixMilli())
	w := th.post(t, body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	th.drain(t)

	assert.Zero(t, th.processor.count())
	assert.Empty(t, th.deliverer.all())
}

func TestHandleMultipleEventsInBatch(t *testing.T) {
	th := newHarness(t, &fakeProcessor{reply: "ok"}, &fakeDeliverer{}, nil)

	ts := time.Now().UnixMilli()
	body := fmt.Sprintf(`{"destination":"Udest","events":[`+
		`{"type":"message","webhookEventId":"evt-a","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U1"},"replyToken":"rt-a","message":{"type":"text","id":"m1","quoteToken":"qt","text":"one"}},`+
		`{"type":"message","webhookEventId":"evt-b","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U2"},"replyToken":"rt-b","message":{"type":"text","id":"m2","quoteToken":"qt","text":"two"}}]}`,
		ts, ts)
	th.post(t, body, true)
	th.drain(t)

	assert.Equal(t, 2, th.processor.count())
	assert.Len(t, th.deliverer.all(), 2)
}

func TestHandlePanicInOneEventSparesSiblings(t *testing.T) {
	proc := &fakeProcessor{reply: "ok", panicOn: "boom"}
	th := newHarness(t, proc, &fakeDeliverer{}, nil)

	ts := time.Now().UnixMilli()
	body := fmt.Sprintf(`{"destination":"Udest","events":[`+
		`{"type":"message","webhookEventId":"evt-p1","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U1"},"replyToken":"rt-p1","message":{"type":"text","id":"m1","quoteToken":"qt","text":"boom"}},`+
		`{"type":"message","webhookEventId":"evt-p2","deliveryContext":{"isRedelivery":false},"timestamp":%d,"mode":"active","source":{"type":"user","userId":"U2"},"replyToken":"rt-p2","message":{"type":"text","id":"m2","quoteToken":"qt","text":"still here"}}]}`,
		ts, ts)
	w := th.post(t, body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	th.drain(t)

	deliveries := th.deliverer.all()
	require.Len(t, deliveries, 1, "the surviving event must still be delivered")
	assert.Equal(t, "rt-p2", deliveries[0].ReplyToken)
	assert.Equal(t, "ok", deliveries[0].Text)
}

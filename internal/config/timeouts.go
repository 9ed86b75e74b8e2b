package config

import "time"

// HTTP server timeouts.
//
// LINE requires the webhook endpoint to acknowledge within a short budget
// (officially a few seconds) or it redelivers the whole payload. The
// handler acknowledges before any slow work, so the server-side read and
// write timeouts only need to cover signature verification and body
// parsing.
const (
	// WebhookHTTPRead bounds reading the webhook request body.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite bounds writing the (empty) acknowledgment.
	WebhookHTTPWrite = 10 * time.Second

	// WebhookHTTPIdle bounds keep-alive connections from the platform.
	WebhookHTTPIdle = 120 * time.Second
)

// Pipeline timeouts. Async event tasks have no platform-imposed deadline
// but are bounded so an unresponsive upstream cannot retain resources
// forever; expiry routes to the fallback-message path.
const (
	// EventProcessing bounds one event's full pipeline (store reads,
	// generation, extraction, delivery).
	EventProcessing = 60 * time.Second

	// GenerationCall bounds a single generation API call within the
	// event budget.
	GenerationCall = 45 * time.Second

	// ReplyTokenWindow is how long after the event timestamp a reply
	// token is still considered usable. LINE tokens are valid for
	// roughly a minute; staying under that avoids burning the single
	// use on a doomed attempt.
	ReplyTokenWindow = 50 * time.Second
)

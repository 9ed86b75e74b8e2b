// Package coach runs the per-message conversation pipeline: context
// assembly, generation, tag extraction, and best-effort persistence.
//
// The pipeline has no knowledge of the messaging platform. It takes a
// normalized incoming message (text, optionally image bytes) and
// returns the reply text to deliver. Persistence of history turns and
// extracted records happens in background goroutines so a slow or
// failing store never delays or blocks the reply.
package coach

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nutrilog/nutri-linebot-go/internal/config"
	"github.com/nutrilog/nutri-linebot-go/internal/ctxutil"
	"github.com/nutrilog/nutri-linebot-go/internal/extract"
	"github.com/nutrilog/nutri-linebot-go/internal/llm"
	"github.com/nutrilog/nutri-linebot-go/internal/logger"
	"github.com/nutrilog/nutri-linebot-go/internal/storage"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (storage.Profile, error)
	MergeProfile(ctx context.Context, userID string, partial storage.Profile) error
	AppendHistory(ctx context.Context, userID, role, content string) error
	RecentHistory(ctx context.Context, userID string, limit int) ([]storage.Turn, error)
	AppendRecord(ctx context.Context, userID, kind string, payload map[string]any) error
	Aggregate(ctx context.Context, userID, kind string, since time.Time) ([]storage.Record, error)
}

// MetricsRecorder records pipeline outcomes: extracted tags and
// generation calls.
type MetricsRecorder interface {
	extract.MetricsRecorder
	RecordLLMRequest(provider, status string, durationSeconds float64)
}

// Incoming is one normalized user message.
type Incoming struct {
	UserID string
	Text   string

	// ImageData carries the photo bytes for image messages.
	ImageData []byte
	ImageMIME string
}

// Coach orchestrates one generation round trip per incoming message.
type Coach struct {
	store        Store
	generator    llm.Generator
	extractor    *extract.Extractor
	log          *logger.Logger
	metrics      MetricsRecorder
	historyDepth int
	now          func() time.Time

	// persistWg tracks fire-and-forget writes so Shutdown can drain
	// them before the process exits.
	persistWg sync.WaitGroup
}

// New creates a Coach. historyDepth bounds the context window in
// turns.
func New(store Store, generator llm.Generator, log *logger.Logger, historyDepth int) *Coach {
	return &Coach{
		store:        store,
		generator:    generator,
		extractor:    extract.New(TagNutritionLog, TagProfileUpdate),
		log:          log.WithModule("coach"),
		historyDepth: historyDepth,
		now:          time.Now,
	}
}

// SetMetrics registers the optional metrics recorder.
func (c *Coach) SetMetrics(m MetricsRecorder) {
	c.metrics = m
	c.extractor.SetMetrics(m)
}

// Welcome greets a freshly followed user and creates their profile
// document so the first conversation starts from one that exists. The
// write runs in the background like every other persist.
func (c *Coach) Welcome(ctx context.Context, userID string) string {
	bg := ctxutil.PreserveTracing(ctx)

	c.persistWg.Add(1)
	go func() {
		defer c.persistWg.Done()
		ctx, cancel := context.WithTimeout(bg, 15*time.Second)
		defer cancel()

		if err := c.store.MergeProfile(ctx, userID, storage.Profile{}); err != nil {
			c.log.WithUserID(userID).WithError(err).Warn("failed to create profile on follow")
		}
	}()

	return welcomeReply
}

// FallbackReply is the fixed message delivered when generation fails.
func (c *Coach) FallbackReply() string {
	return fallbackReply
}

// Process runs the pipeline for one message and returns the reply
// text. A non-nil error means generation failed and the caller should
// deliver FallbackReply instead; store failures alone never produce an
// error here.
func (c *Coach) Process(ctx context.Context, msg Incoming) (string, error) {
	ctx = ctxutil.WithUserID(ctx, msg.UserID)
	log := c.log.WithUserID(msg.UserID)

	profile, history, todays := c.loadContext(ctx, msg.UserID)

	systemContext := buildSystemContext(profile, todays, c.now())

	newTurn := llm.Turn{
		Role:      llm.RoleUser,
		Content:   msg.Text,
		ImageData: msg.ImageData,
		ImageMIME: msg.ImageMIME,
	}
	if newTurn.Content == "" && newTurn.HasImage() {
		newTurn.Content = photoPromptText
	}

	genCtx, cancel := context.WithTimeout(ctx, config.GenerationCall)
	defer cancel()

	genStart := c.now()
	raw, err := c.generator.Generate(genCtx, systemContext, toLLMTurns(history), newTurn)
	c.recordLLMRequest(err, time.Since(genStart))
	if err != nil {
		log.WithError(err).Error("generation failed")
		return "", err
	}

	clean, records := c.extractor.Extract(ctx, raw)
	if clean == "" {
		// The model emitted only tag blocks. Persist them, but the
		// user still needs words.
		log.Warn("generation produced no visible text")
		clean = fallbackReply
	}

	c.persistAsync(ctx, msg.UserID, newTurn.Content, clean, records)

	return clean, nil
}

func (c *Coach) recordLLMRequest(err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordLLMRequest(c.generator.Provider().String(), status, duration.Seconds())
}

// loadContext reads profile, history window and today's records in
// parallel. Each read degrades to its zero value on failure; a broken
// store must not take the conversation down with it.
func (c *Coach) loadContext(ctx context.Context, userID string) (storage.Profile, []storage.Turn, []storage.Record) {
	var (
		profile storage.Profile
		history []storage.Turn
		todays  []storage.Record
	)

	log := c.log.WithUserID(userID)
	startOfDay := startOfDay(c.now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.store.GetProfile(gctx, userID)
		if err != nil {
			log.WithError(err).Warn("profile read failed, continuing without")
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		h, err := c.store.RecentHistory(gctx, userID, c.historyDepth)
		if err != nil {
			log.WithError(err).Warn("history read failed, continuing without")
		}
		history = h
		return nil
	})
	g.Go(func() error {
		r, err := c.store.Aggregate(gctx, userID, storage.KindNutrition, startOfDay)
		if err != nil {
			log.WithError(err).Warn("aggregate read failed, continuing without")
		}
		todays = r
		return nil
	})
	_ = g.Wait() // goroutines always return nil

	return profile, history, todays
}

// persistAsync writes the new turns and extracted records in the
// background. The context is detached from the request so cancellation
// of the event task does not abandon half-written state.
func (c *Coach) persistAsync(reqCtx context.Context, userID, userText, assistantText string, records []extract.Record) {
	ctx := ctxutil.PreserveTracing(reqCtx)
	log := c.log.WithUserID(userID)

	c.persistWg.Add(1)
	go func() {
		defer c.persistWg.Done()
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		if err := c.store.AppendHistory(ctx, userID, storage.RoleUser, userText); err != nil {
			log.WithError(err).Warn("failed to persist user turn")
		}
		if err := c.store.AppendHistory(ctx, userID, storage.RoleAssistant, assistantText); err != nil {
			log.WithError(err).Warn("failed to persist assistant turn")
		}

		for _, rec := range records {
			switch rec.Tag {
			case TagProfileUpdate:
				if err := c.store.MergeProfile(ctx, userID, storage.Profile(rec.Payload)); err != nil {
					log.WithError(err).Warn("failed to merge profile update")
				}
			case TagNutritionLog:
				if err := c.store.AppendRecord(ctx, userID, storage.KindNutrition, rec.Payload); err != nil {
					log.WithError(err).Warn("failed to persist nutrition record")
				}
			}
		}
	}()
}

// Shutdown waits for in-flight background writes, up to the context
// deadline.
func (c *Coach) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.persistWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toLLMTurns(turns []storage.Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == storage.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Turn{Role: role, Content: t.Content})
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
